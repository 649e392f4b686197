// internal/provider/provider.go
package provider

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the boundary to the hosted payment provider. It holds no
// business state.
type PaymentGateway interface {
	// GetName returns the provider name
	GetName() string

	// CreatePaymentSession opens a hosted checkout and returns its link
	CreatePaymentSession(ctx context.Context, req *PaymentSessionRequest) (string, error)

	// VerifyByReference returns the provider's view of a transaction
	VerifyByReference(ctx context.Context, txRef string) (*TransactionView, error)
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PaymentSessionRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	RedirectURL string
	Customer    Customer
	Metadata    map[string]string
}

// TransactionView is the provider's answer to a verify call. Raw is the
// untouched response body, handed back to operators as-is.
type TransactionView struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    TransactionData `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

type TransactionData struct {
	ID       json.Number `json:"id"`
	TxRef    string      `json:"tx_ref"`
	FlwRef   string      `json:"flw_ref"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Status   string      `json:"status"`
}
