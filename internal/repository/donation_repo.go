// internal/repository/donation_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
)

type DonationRepository interface {
	Create(ctx context.Context, donation *domain.Donation) error
	GetByID(ctx context.Context, id string) (*domain.Donation, error)
	GetByTxRef(ctx context.Context, txRef string) (*domain.Donation, error)

	// MarkSuccessful moves a pending donation to successful and credits its
	// campaign in one transaction. applied is false when the donation was
	// not pending anymore; nothing is written in that case.
	MarkSuccessful(ctx context.Context, id, providerTxID string) (settlement *domain.Settlement, applied bool, err error)

	// MarkFailed moves a pending donation to failed. applied is false when
	// the donation was not pending.
	MarkFailed(ctx context.Context, id string) (applied bool, err error)
}

type donationRepo struct {
	db DB
}

func NewDonationRepository(db DB) DonationRepository {
	return &donationRepo{db: db}
}

const donationColumns = `
	id, tx_ref, campaign_id, donor_name, donor_email, amount, currency,
	status, provider_tx_id, created_at, updated_at, completed_at`

func (r *donationRepo) Create(ctx context.Context, donation *domain.Donation) error {
	query := `
		INSERT INTO donations (
			id, tx_ref, campaign_id, donor_name, donor_email, amount, currency, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		donation.ID,
		donation.TxRef,
		donation.CampaignID,
		donation.DonorName,
		donation.DonorEmail,
		donation.Amount,
		donation.Currency,
		donation.Status,
	).Scan(&donation.CreatedAt, &donation.UpdatedAt)
	if err != nil {
		switch xerrors.ParsePGErrorCode(err) {
		case xerrors.PGUniqueViolation:
			return fmt.Errorf("%w: tx_ref %s already used", xerrors.ErrConflict, donation.TxRef)
		case xerrors.PGForeignKeyViolation:
			return fmt.Errorf("%w: campaign %s", xerrors.ErrNotFound, donation.CampaignID)
		case xerrors.PGCheckViolation, xerrors.PGNumericOutOfRange:
			return fmt.Errorf("%w: amount %s rejected by store", xerrors.ErrInvalidRequest, donation.Amount)
		}
		return fmt.Errorf("failed to create donation: %w", err)
	}

	return nil
}

func (r *donationRepo) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *donationRepo) GetByTxRef(ctx context.Context, txRef string) (*domain.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE tx_ref = $1`
	return r.getOne(ctx, query, txRef)
}

func (r *donationRepo) getOne(ctx context.Context, query string, arg string) (*domain.Donation, error) {
	var d domain.Donation
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&d.ID,
		&d.TxRef,
		&d.CampaignID,
		&d.DonorName,
		&d.DonorEmail,
		&d.Amount,
		&d.Currency,
		&d.Status,
		&d.ProviderTxID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}

	return &d, nil
}

func (r *donationRepo) MarkSuccessful(ctx context.Context, id, providerTxID string) (*domain.Settlement, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The status guard is the exclusivity point: concurrent callers block on
	// the row lock and then see status <> 'pending'.
	query := `
		UPDATE donations
		SET status = 'successful',
			provider_tx_id = NULLIF($2, ''),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING campaign_id, tx_ref, amount, currency
	`

	s := domain.Settlement{DonationID: id, ProviderTxID: providerTxID}
	err = tx.QueryRow(ctx, query, id, providerTxID).Scan(
		&s.CampaignID,
		&s.TxRef,
		&s.Amount,
		&s.Currency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to mark donation successful: %w", err)
	}

	collected, err := incrementCollected(ctx, tx, s.CampaignID, s.Amount)
	if err != nil {
		return nil, false, err
	}
	s.Collected = collected

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return &s, true, nil
}

func (r *donationRepo) MarkFailed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE donations
		SET status = 'failed',
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark donation failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
