// internal/domain/donation.go
package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DonationStatus string

const (
	DonationStatusPending    DonationStatus = "pending"
	DonationStatusSuccessful DonationStatus = "successful"
	DonationStatusFailed     DonationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationStatusSuccessful || s == DonationStatusFailed
}

// Donation is a single donor contribution to a campaign. TxRef is our
// merchant reference and the idempotency key for reconciliation.
type Donation struct {
	ID           string          `json:"id" db:"id"`
	TxRef        string          `json:"tx_ref" db:"tx_ref"`
	CampaignID   string          `json:"campaign" db:"campaign_id"`
	DonorName    *string         `json:"name,omitempty" db:"donor_name"`
	DonorEmail   *string         `json:"email,omitempty" db:"donor_email"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Currency     string          `json:"currency" db:"currency"`
	Status       DonationStatus  `json:"status" db:"status"`
	ProviderTxID *string         `json:"flw_tx_id,omitempty" db:"provider_tx_id"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}

// Settlement is what a winning pending -> successful transition reports.
type Settlement struct {
	DonationID   string
	CampaignID   string
	TxRef        string
	Amount       decimal.Decimal
	Currency     string
	ProviderTxID string
	Collected    decimal.Decimal // campaign total after the increment
}

// DonateRequest is the body of POST /campaigns/{id}/donate.
type DonateRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Amount      decimal.Decimal `json:"amount"`
	RedirectURL string          `json:"redirect_url"`
}

// MaxAmount is the largest value a NUMERIC(20,2) amount column holds.
var MaxAmount = decimal.RequireFromString("999999999999999999.99")

func (r *DonateRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	// Stored and charged amounts must be the same value.
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return errors.New("amount must have at most 2 decimal places")
	}
	if r.Amount.GreaterThan(MaxAmount) {
		return errors.New("amount is too large")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return errors.New("invalid email format")
		}
	}
	return nil
}

// Intent is returned to the caller, who redirects the donor to Link.
type Intent struct {
	Link       string `json:"link"`
	TxRef      string `json:"tx_ref"`
	DonationID string `json:"donationId"`
}
