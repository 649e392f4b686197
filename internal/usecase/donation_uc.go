// internal/usecase/donation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"donation-service/config"
	"donation-service/internal/domain"
	"donation-service/internal/metrics"
	"donation-service/internal/provider"
	"donation-service/internal/repository"
	"donation-service/pkg/id"
	"donation-service/pkg/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultDonorName  = "Anonymous Donor"
	DefaultDonorEmail = "donor@example.com"
)

type DonationUsecase struct {
	campaignRepo repository.CampaignRepository
	donationRepo repository.DonationRepository
	gateway      provider.PaymentGateway
	events       EventPublisher
	config       config.AppConfig
	logger       *zap.Logger

	bg background
}

func NewDonationUsecase(
	campaignRepo repository.CampaignRepository,
	donationRepo repository.DonationRepository,
	gateway provider.PaymentGateway,
	events EventPublisher,
	cfg config.AppConfig,
	logger *zap.Logger,
) *DonationUsecase {
	return &DonationUsecase{
		campaignRepo: campaignRepo,
		donationRepo: donationRepo,
		gateway:      gateway,
		events:       events,
		config:       cfg,
		logger:       logger,
	}
}

// CreateIntent records a pending donation and opens a hosted checkout for it.
//
// If the gateway fails the pending donation is left in place. It can only be
// settled by a provider confirmation carrying its tx_ref.
func (uc *DonationUsecase) CreateIntent(ctx context.Context, campaignID string, req *domain.DonateRequest) (*domain.Intent, error) {
	if err := req.Validate(); err != nil {
		metrics.IntentCreated("invalid")
		return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidRequest, err)
	}

	campaign, err := uc.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			metrics.IntentCreated("campaign_not_found")
			return nil, fmt.Errorf("%w: campaign %s", xerrors.ErrNotFound, campaignID)
		}
		return nil, err
	}

	donation := &domain.Donation{
		ID:         id.GenerateUUID(id.PrefixDonation),
		TxRef:      uc.newTxRef(campaign.ID),
		CampaignID: campaign.ID,
		DonorName:  optional(req.Name),
		DonorEmail: optional(req.Email),
		Amount:     req.Amount,
		Currency:   uc.config.DefaultCurrency,
		Status:     domain.DonationStatusPending,
	}

	if err := uc.donationRepo.Create(ctx, donation); err != nil {
		uc.logger.Error("failed to persist donation",
			zap.String("campaign_id", campaign.ID),
			zap.String("tx_ref", donation.TxRef),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("pending donation created",
		zap.String("donation_id", donation.ID),
		zap.String("campaign_id", campaign.ID),
		zap.String("tx_ref", donation.TxRef),
		zap.String("amount", donation.Amount.String()),
		zap.String("currency", donation.Currency))

	session := &provider.PaymentSessionRequest{
		Reference:   donation.TxRef,
		Amount:      donation.Amount,
		Currency:    donation.Currency,
		RedirectURL: uc.redirectURL(req.RedirectURL, donation.TxRef),
		Customer: provider.Customer{
			Name:  orDefault(req.Name, DefaultDonorName),
			Email: orDefault(req.Email, DefaultDonorEmail),
		},
		Metadata: map[string]string{
			"campaignId": campaign.ID,
			"donationId": donation.ID,
		},
	}

	link, err := uc.gateway.CreatePaymentSession(ctx, session)
	if err != nil {
		metrics.IntentCreated("gateway_error")
		uc.logger.Error("payment session failed, donation left pending",
			zap.String("donation_id", donation.ID),
			zap.String("tx_ref", donation.TxRef),
			zap.String("provider", uc.gateway.GetName()),
			zap.Error(err))
		if !errors.Is(err, xerrors.ErrGateway) {
			err = fmt.Errorf("%w: %v", xerrors.ErrGateway, err)
		}
		return nil, err
	}

	metrics.IntentCreated("ok")

	if uc.events != nil {
		queued := uc.bg.Go(ctx, func(ctx context.Context) {
			if err := uc.events.PublishDonationCreated(ctx, donation); err != nil {
				uc.logger.Warn("failed to publish donation.created",
					zap.String("tx_ref", donation.TxRef),
					zap.Error(err))
			}
		})
		if !queued {
			uc.logger.Warn("shutting down, dropped donation.created event",
				zap.String("tx_ref", donation.TxRef))
		}
	}

	return &domain.Intent{
		Link:       link,
		TxRef:      donation.TxRef,
		DonationID: donation.ID,
	}, nil
}

// GetByTxRef returns the current state of a donation.
func (uc *DonationUsecase) GetByTxRef(ctx context.Context, txRef string) (*domain.Donation, error) {
	if txRef == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", xerrors.ErrInvalidRequest)
	}
	return uc.donationRepo.GetByTxRef(ctx, txRef)
}

// Wait blocks until background publishes are done.
func (uc *DonationUsecase) Wait() {
	uc.bg.Wait()
}

// Close drops new background publishes and waits for running ones.
func (uc *DonationUsecase) Close() {
	uc.bg.Close()
}

// newTxRef builds <prefix>_<campaignID>_<uuid>.
func (uc *DonationUsecase) newTxRef(campaignID string) string {
	return fmt.Sprintf("%s_%s_%s", uc.config.TxRefPrefix, campaignID, uuid.NewString())
}

func (uc *DonationUsecase) redirectURL(requested, txRef string) string {
	if requested != "" {
		return requested
	}
	return fmt.Sprintf("%s/payment-complete?tx_ref=%s", uc.config.BaseURL, url.QueryEscape(txRef))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
