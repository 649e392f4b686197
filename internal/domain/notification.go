// internal/domain/notification.go
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventChargeCompleted = "charge.completed"
	ProviderStatusOK     = "successful"
	ProviderStatusFailed = "failed"
)

// Notification is the canonical form of a provider webhook, whatever shape
// the provider used to send it.
type Notification struct {
	Event        string
	TxRef        string
	ProviderTxID string
	Status       string // lower-cased, may be empty
	DonationID   string // meta.donationId hint
	Amount       *decimal.Decimal
	Currency     string
}

// IsSuccessful reports whether the notification confirms a successful
// payment. An explicit status wins over the event name.
func (n *Notification) IsSuccessful() bool {
	if n.Status != "" {
		return n.Status == ProviderStatusOK
	}
	return n.Event == EventChargeCompleted
}

// ParseNotification normalizes a webhook body.
//
// The envelope is {event, data}; when data is missing the top-level object is
// treated as data. Field precedence:
//
//	TxRef:        tx_ref, reference, flw_ref
//	ProviderTxID: id, transaction_id, flw_ref
//	Status:       status, payment_status
//	DonationID:   meta.donationId
func ParseNotification(payload []byte) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var envelope map[string]interface{}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse notification: %w", err)
	}

	data, ok := envelope["data"].(map[string]interface{})
	if !ok {
		data = envelope
	}

	n := &Notification{
		Event:        firstString(envelope, "event"),
		TxRef:        firstString(data, "tx_ref", "reference", "flw_ref"),
		ProviderTxID: firstString(data, "id", "transaction_id", "flw_ref"),
		Status:       strings.ToLower(firstString(data, "status", "payment_status")),
		Currency:     firstString(data, "currency"),
	}

	if meta, ok := data["meta"].(map[string]interface{}); ok {
		n.DonationID = firstString(meta, "donationId")
	}

	if raw := firstString(data, "amount"); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			n.Amount = &amount
		}
	}

	return n, nil
}

// firstString returns the first non-empty scalar among keys, as text.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

type NotificationOutcome string

const (
	OutcomeApplied    NotificationOutcome = "applied"
	OutcomeDuplicate  NotificationOutcome = "duplicate"
	OutcomeIgnored    NotificationOutcome = "ignored"
	OutcomeUnresolved NotificationOutcome = "unresolved"
	OutcomeStale      NotificationOutcome = "stale" // donation already failed
	OutcomeFailed     NotificationOutcome = "failed"
)

// NotificationRecord is one row of the provider notification audit log.
type NotificationRecord struct {
	ID           int64               `json:"id" db:"id"`
	Source       string              `json:"source" db:"source"`
	Event        string              `json:"event" db:"event"`
	TxRef        *string             `json:"tx_ref,omitempty" db:"tx_ref"`
	ProviderTxID *string             `json:"provider_tx_id,omitempty" db:"provider_tx_id"`
	DonationID   *string             `json:"donation_id,omitempty" db:"donation_id"`
	Status       *string             `json:"status,omitempty" db:"status"`
	Outcome      NotificationOutcome `json:"outcome" db:"outcome"`
	Payload      json.RawMessage     `json:"payload,omitempty" db:"payload"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}
