// internal/domain/campaign.go
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is a fundraising campaign. Collected only moves up, and only when
// a donation for this campaign is settled.
type Campaign struct {
	ID               string          `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	ShortDescription *string         `json:"shortDescription,omitempty" db:"short_description"`
	Description      *string         `json:"description,omitempty" db:"description"`
	Goal             decimal.Decimal `json:"goal" db:"goal"`
	Collected        decimal.Decimal `json:"collected" db:"collected"`
	OwnerID          *string         `json:"owner,omitempty" db:"owner_id"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	Title            string          `json:"title"`
	ShortDescription string          `json:"shortDescription"`
	Description      string          `json:"description"`
	Goal             decimal.Decimal `json:"goal"`
}

func (r *CreateCampaignRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Goal.IsNegative() {
		return errors.New("goal must not be negative")
	}
	return nil
}
