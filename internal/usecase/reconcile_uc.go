// internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"donation-service/internal/domain"
	"donation-service/internal/metrics"
	"donation-service/internal/provider"
	"donation-service/internal/repository"
	"donation-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"

	modeSecure   = "secure"
	modeInsecure = "insecure"
	modeOperator = "operator"
)

// ReconcileResult is returned to the operator after a pull reconcile.
type ReconcileResult struct {
	TxRef          string                     `json:"tx_ref"`
	DonationID     string                     `json:"donationId"`
	ProviderStatus string                     `json:"provider_status"`
	Outcome        domain.NotificationOutcome `json:"outcome"`
	Status         domain.DonationStatus      `json:"status"`
}

// ReconcileUsecase turns provider confirmations into donation state. Webhook
// pushes and operator pulls both end in applySuccess, which relies on the
// store's conditional pending -> successful transition for exactly-once
// crediting.
type ReconcileUsecase struct {
	donationRepo     repository.DonationRepository
	notificationRepo repository.NotificationRepository
	gateway          provider.PaymentGateway
	cache            SettlementCache
	events           EventPublisher
	webhookHash      string
	logger           *zap.Logger

	bg background
}

func NewReconcileUsecase(
	donationRepo repository.DonationRepository,
	notificationRepo repository.NotificationRepository,
	gateway provider.PaymentGateway,
	cache SettlementCache,
	events EventPublisher,
	webhookHash string,
	logger *zap.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		donationRepo:     donationRepo,
		notificationRepo: notificationRepo,
		gateway:          gateway,
		cache:            cache,
		events:           events,
		webhookHash:      webhookHash,
		logger:           logger,
	}
}

// ============================================
// PUSH
// ============================================

// HandleWebhook authenticates and applies one provider notification. Every
// returned outcome is meant to be acknowledged with a 2xx. Errors are
// ErrAuthenticationFailed, ErrInvalidRequest or an internal fault.
func (uc *ReconcileUsecase) HandleWebhook(ctx context.Context, payload []byte, token string) (domain.NotificationOutcome, error) {
	mode := modeSecure
	if uc.webhookHash == "" {
		mode = modeInsecure
		uc.logger.Warn("accepting unauthenticated webhook; FLW_WEBHOOK_HASH is not configured")
	} else if subtle.ConstantTimeCompare([]byte(token), []byte(uc.webhookHash)) != 1 {
		metrics.Notification(SourceWebhook, "rejected", mode)
		uc.logger.Warn("webhook rejected: verif-hash mismatch",
			zap.Bool("header_present", token != ""))
		return "", xerrors.ErrAuthenticationFailed
	}

	n, err := domain.ParseNotification(payload)
	if err != nil {
		metrics.Notification(SourceWebhook, "malformed", mode)
		return "", fmt.Errorf("%w: %v", xerrors.ErrInvalidRequest, err)
	}

	uc.logger.Info("webhook received",
		zap.String("event", n.Event),
		zap.String("tx_ref", n.TxRef),
		zap.String("provider_tx_id", n.ProviderTxID),
		zap.String("status", n.Status),
		zap.String("mode", mode))

	outcome, donation, err := uc.processNotification(ctx, n)
	if err != nil {
		metrics.Notification(SourceWebhook, "error", mode)
		uc.logger.Error("webhook processing failed",
			zap.String("tx_ref", n.TxRef),
			zap.Error(err))
		return "", err
	}

	metrics.Notification(SourceWebhook, string(outcome), mode)
	uc.audit(ctx, SourceWebhook, n, donation, outcome, payload)

	return outcome, nil
}

func (uc *ReconcileUsecase) processNotification(ctx context.Context, n *domain.Notification) (domain.NotificationOutcome, *domain.Donation, error) {
	if !n.IsSuccessful() {
		return domain.OutcomeIgnored, nil, nil
	}

	if uc.isSettled(ctx, n.TxRef) {
		return domain.OutcomeDuplicate, nil, nil
	}

	donation, err := uc.resolve(ctx, n)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			uc.logger.Info("webhook references no known donation",
				zap.String("tx_ref", n.TxRef),
				zap.String("donation_hint", n.DonationID))
			return domain.OutcomeUnresolved, nil, nil
		}
		return "", nil, err
	}

	outcome, err := uc.applySuccess(ctx, donation, n.ProviderTxID, n.Amount, SourceWebhook)
	if err != nil {
		return "", donation, err
	}
	return outcome, donation, nil
}

// resolve finds the donation by tx_ref, then by the meta.donationId hint.
func (uc *ReconcileUsecase) resolve(ctx context.Context, n *domain.Notification) (*domain.Donation, error) {
	if n.TxRef != "" {
		d, err := uc.donationRepo.GetByTxRef(ctx, n.TxRef)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	if n.DonationID != "" {
		return uc.donationRepo.GetByID(ctx, n.DonationID)
	}

	return nil, xerrors.ErrNotFound
}

// applySuccess settles d at most once. Losers of a concurrent race report
// OutcomeDuplicate and never touch the campaign total.
func (uc *ReconcileUsecase) applySuccess(ctx context.Context, d *domain.Donation, providerTxID string, reported *decimal.Decimal, source string) (domain.NotificationOutcome, error) {
	switch d.Status {
	case domain.DonationStatusSuccessful:
		uc.logger.Info("donation already settled",
			zap.String("donation_id", d.ID),
			zap.String("tx_ref", d.TxRef),
			zap.String("source", source))
		return domain.OutcomeDuplicate, nil
	case domain.DonationStatusFailed:
		uc.logger.Warn("success reported for a failed donation; not applied",
			zap.String("donation_id", d.ID),
			zap.String("tx_ref", d.TxRef),
			zap.String("provider_tx_id", providerTxID),
			zap.String("source", source))
		return domain.OutcomeStale, nil
	}

	if reported != nil && !reported.Equal(d.Amount) {
		uc.logger.Warn("provider amount differs from donation amount; crediting donation amount",
			zap.String("donation_id", d.ID),
			zap.String("tx_ref", d.TxRef),
			zap.String("donation_amount", d.Amount.String()),
			zap.String("provider_amount", reported.String()))
	}

	settlement, applied, err := uc.donationRepo.MarkSuccessful(ctx, d.ID, providerTxID)
	if err != nil {
		return "", fmt.Errorf("failed to settle donation %s: %w", d.ID, err)
	}

	if !applied {
		if current, err := uc.donationRepo.GetByID(ctx, d.ID); err == nil && current.Status == domain.DonationStatusFailed {
			return domain.OutcomeStale, nil
		}
		uc.logger.Info("donation settled concurrently",
			zap.String("donation_id", d.ID),
			zap.String("source", source))
		return domain.OutcomeDuplicate, nil
	}

	metrics.Settled()
	uc.logger.Info("donation settled",
		zap.String("donation_id", settlement.DonationID),
		zap.String("campaign_id", settlement.CampaignID),
		zap.String("tx_ref", settlement.TxRef),
		zap.String("amount", settlement.Amount.String()),
		zap.String("collected", settlement.Collected.String()),
		zap.String("provider_tx_id", providerTxID),
		zap.String("source", source))

	uc.afterSettlement(ctx, settlement, source)

	return domain.OutcomeApplied, nil
}

// afterSettlement runs only after commit. Failures are logged and dropped.
func (uc *ReconcileUsecase) afterSettlement(ctx context.Context, s *domain.Settlement, source string) {
	if uc.cache != nil {
		if err := uc.cache.MarkSettled(ctx, s.TxRef, s.DonationID); err != nil {
			uc.logger.Warn("failed to mark tx_ref settled in cache",
				zap.String("tx_ref", s.TxRef),
				zap.Error(err))
		}
	}

	if uc.events != nil {
		queued := uc.bg.Go(ctx, func(ctx context.Context) {
			if err := uc.events.PublishDonationSuccessful(ctx, s, source); err != nil {
				uc.logger.Warn("failed to publish donation.successful",
					zap.String("tx_ref", s.TxRef),
					zap.Error(err))
			}
		})
		if !queued {
			uc.logger.Warn("shutting down, dropped donation.successful event",
				zap.String("tx_ref", s.TxRef))
		}
	}
}

func (uc *ReconcileUsecase) isSettled(ctx context.Context, txRef string) bool {
	if uc.cache == nil || txRef == "" {
		return false
	}
	settled, err := uc.cache.IsSettled(ctx, txRef)
	if err != nil {
		uc.logger.Warn("settled cache lookup failed, falling back to database",
			zap.String("tx_ref", txRef),
			zap.Error(err))
		return false
	}
	return settled
}

// ============================================
// PULL
// ============================================

// Verify returns the provider's view of txRef untouched.
func (uc *ReconcileUsecase) Verify(ctx context.Context, txRef string) (*provider.TransactionView, error) {
	if strings.TrimSpace(txRef) == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", xerrors.ErrInvalidRequest)
	}
	return uc.gateway.VerifyByReference(ctx, txRef)
}

// Reconcile asks the provider about txRef and applies the answer. A
// successful payment goes through applySuccess; a failed one closes a pending
// donation as failed.
func (uc *ReconcileUsecase) Reconcile(ctx context.Context, txRef string) (*ReconcileResult, error) {
	if strings.TrimSpace(txRef) == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", xerrors.ErrInvalidRequest)
	}

	donation, err := uc.donationRepo.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, err
	}

	view, err := uc.gateway.VerifyByReference(ctx, txRef)
	if err != nil {
		metrics.Notification(SourceReconcile, "error", modeOperator)
		return nil, err
	}

	if view.Data.TxRef != "" && view.Data.TxRef != txRef {
		metrics.Notification(SourceReconcile, "error", modeOperator)
		return nil, fmt.Errorf("%w: verify returned tx_ref %q for %q", xerrors.ErrGateway, view.Data.TxRef, txRef)
	}

	n := &domain.Notification{
		Event:        "verify",
		TxRef:        txRef,
		ProviderTxID: view.Data.ID.String(),
		Status:       strings.ToLower(strings.TrimSpace(view.Data.Status)),
		DonationID:   donation.ID,
		Currency:     view.Data.Currency,
	}
	if n.ProviderTxID == "" {
		n.ProviderTxID = view.Data.FlwRef
	}
	if amount, err := decimal.NewFromString(view.Data.Amount.String()); err == nil {
		n.Amount = &amount
	}

	result := &ReconcileResult{
		TxRef:          txRef,
		DonationID:     donation.ID,
		ProviderStatus: n.Status,
		Status:         donation.Status,
	}

	switch n.Status {
	case domain.ProviderStatusOK:
		result.Outcome, err = uc.applySuccess(ctx, donation, n.ProviderTxID, n.Amount, SourceReconcile)
		if err != nil {
			metrics.Notification(SourceReconcile, "error", modeOperator)
			return nil, err
		}
		if result.Outcome == domain.OutcomeApplied || result.Outcome == domain.OutcomeDuplicate {
			result.Status = domain.DonationStatusSuccessful
		}
	case domain.ProviderStatusFailed:
		result.Outcome, err = uc.applyFailure(ctx, donation)
		if err != nil {
			metrics.Notification(SourceReconcile, "error", modeOperator)
			return nil, err
		}
		if result.Outcome == domain.OutcomeFailed {
			result.Status = domain.DonationStatusFailed
		}
	default:
		result.Outcome = domain.OutcomeIgnored
	}

	metrics.Notification(SourceReconcile, string(result.Outcome), modeOperator)
	uc.audit(ctx, SourceReconcile, n, donation, result.Outcome, view.Raw)

	uc.logger.Info("reconcile finished",
		zap.String("tx_ref", txRef),
		zap.String("donation_id", donation.ID),
		zap.String("provider_status", n.Status),
		zap.String("outcome", string(result.Outcome)))

	return result, nil
}

func (uc *ReconcileUsecase) applyFailure(ctx context.Context, d *domain.Donation) (domain.NotificationOutcome, error) {
	if d.Status.IsTerminal() {
		return domain.OutcomeIgnored, nil
	}

	applied, err := uc.donationRepo.MarkFailed(ctx, d.ID)
	if err != nil {
		return "", fmt.Errorf("failed to close donation %s: %w", d.ID, err)
	}
	if !applied {
		return domain.OutcomeIgnored, nil
	}

	uc.logger.Info("donation marked failed",
		zap.String("donation_id", d.ID),
		zap.String("tx_ref", d.TxRef))

	if uc.events != nil {
		failed := *d
		failed.Status = domain.DonationStatusFailed
		queued := uc.bg.Go(ctx, func(ctx context.Context) {
			if err := uc.events.PublishDonationFailed(ctx, &failed, SourceReconcile); err != nil {
				uc.logger.Warn("failed to publish donation.failed",
					zap.String("tx_ref", failed.TxRef),
					zap.Error(err))
			}
		})
		if !queued {
			uc.logger.Warn("shutting down, dropped donation.failed event",
				zap.String("tx_ref", failed.TxRef))
		}
	}

	return domain.OutcomeFailed, nil
}

// Notifications lists the audit trail recorded for txRef.
func (uc *ReconcileUsecase) Notifications(ctx context.Context, txRef string) ([]*domain.NotificationRecord, error) {
	if strings.TrimSpace(txRef) == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", xerrors.ErrInvalidRequest)
	}
	return uc.notificationRepo.ListByTxRef(ctx, txRef)
}

// Wait blocks until background publishes are done.
func (uc *ReconcileUsecase) Wait() {
	uc.bg.Wait()
}

// Close drops new background publishes and waits for running ones.
func (uc *ReconcileUsecase) Close() {
	uc.bg.Close()
}

func (uc *ReconcileUsecase) audit(ctx context.Context, source string, n *domain.Notification, d *domain.Donation, outcome domain.NotificationOutcome, payload []byte) {
	rec := &domain.NotificationRecord{
		Source:       source,
		Event:        n.Event,
		TxRef:        optional(n.TxRef),
		ProviderTxID: optional(n.ProviderTxID),
		DonationID:   optional(n.DonationID),
		Status:       optional(n.Status),
		Outcome:      outcome,
	}
	if d != nil {
		rec.DonationID = &d.ID
		if rec.TxRef == nil {
			rec.TxRef = &d.TxRef
		}
	}
	if json.Valid(payload) {
		rec.Payload = payload
	}

	if err := uc.notificationRepo.Record(ctx, rec); err != nil {
		uc.logger.Warn("failed to record notification",
			zap.String("source", source),
			zap.String("tx_ref", n.TxRef),
			zap.Error(err))
	}
}
