// internal/repository/campaign_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, limit int) ([]*domain.Campaign, error)
}

type campaignRepo struct {
	db DB
}

func NewCampaignRepository(db DB) CampaignRepository {
	return &campaignRepo{db: db}
}

const campaignColumns = `
	id, title, short_description, description, goal, collected,
	owner_id, created_at, updated_at`

func (r *campaignRepo) Create(ctx context.Context, campaign *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, title, short_description, description, goal, collected, owner_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		campaign.ID,
		campaign.Title,
		campaign.ShortDescription,
		campaign.Description,
		campaign.Goal,
		campaign.Collected,
		campaign.OwnerID,
	).Scan(&campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return fmt.Errorf("%w: campaign %s already exists", xerrors.ErrConflict, campaign.ID)
		}
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

func (r *campaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	c, err := scanCampaign(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// List returns campaigns newest first.
func (r *campaignRepo) List(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]*domain.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign rows: %w", err)
	}

	return campaigns, nil
}

// incrementCollected adds amount to the campaign total inside tx and returns
// the new total.
func incrementCollected(ctx context.Context, tx pgx.Tx, campaignID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if tx == nil {
		return decimal.Zero, errors.New("transaction cannot be nil")
	}

	query := `
		UPDATE campaigns
		SET collected = collected + $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING collected
	`

	var collected decimal.Decimal
	if err := tx.QueryRow(ctx, query, campaignID, amount).Scan(&collected); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: campaign %s", xerrors.ErrNotFound, campaignID)
		}
		return decimal.Zero, fmt.Errorf("failed to increment campaign total: %w", err)
	}

	return collected, nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.ShortDescription,
		&c.Description,
		&c.Goal,
		&c.Collected,
		&c.OwnerID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
