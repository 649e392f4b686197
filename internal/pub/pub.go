// internal/pub/pub.go
package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"donation-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventDonationCreated    = "donation.created"
	EventDonationSuccessful = "donation.successful"
	EventDonationFailed     = "donation.failed"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DonationEventPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewDonationEventPublisher(writer MessageWriter, logger *zap.Logger) *DonationEventPublisher {
	return &DonationEventPublisher{writer: writer, logger: logger}
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchSize:    50,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

type DonationEvent struct {
	EventType    string           `json:"event_type"`
	DonationID   string           `json:"donation_id"`
	CampaignID   string           `json:"campaign_id"`
	TxRef        string           `json:"tx_ref"`
	Status       string           `json:"status"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency"`
	ProviderTxID string           `json:"provider_tx_id,omitempty"`
	Collected    *decimal.Decimal `json:"collected,omitempty"`
	Source       string           `json:"source,omitempty"` // webhook | reconcile
	Timestamp    time.Time        `json:"timestamp"`
}

// Publish writes one event keyed by tx_ref, so all events of a donation land
// on the same partition.
func (p *DonationEventPublisher) Publish(ctx context.Context, event *DonationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TxRef),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType, err)
	}

	p.logger.Debug("donation event published",
		zap.String("event_type", event.EventType),
		zap.String("tx_ref", event.TxRef))

	return nil
}

func (p *DonationEventPublisher) PublishDonationCreated(ctx context.Context, d *domain.Donation) error {
	return p.Publish(ctx, &DonationEvent{
		EventType:  EventDonationCreated,
		DonationID: d.ID,
		CampaignID: d.CampaignID,
		TxRef:      d.TxRef,
		Status:     string(d.Status),
		Amount:     d.Amount,
		Currency:   d.Currency,
	})
}

func (p *DonationEventPublisher) PublishDonationSuccessful(ctx context.Context, s *domain.Settlement, source string) error {
	collected := s.Collected
	return p.Publish(ctx, &DonationEvent{
		EventType:    EventDonationSuccessful,
		DonationID:   s.DonationID,
		CampaignID:   s.CampaignID,
		TxRef:        s.TxRef,
		Status:       string(domain.DonationStatusSuccessful),
		Amount:       s.Amount,
		Currency:     s.Currency,
		ProviderTxID: s.ProviderTxID,
		Collected:    &collected,
		Source:       source,
	})
}

func (p *DonationEventPublisher) PublishDonationFailed(ctx context.Context, d *domain.Donation, source string) error {
	return p.Publish(ctx, &DonationEvent{
		EventType:  EventDonationFailed,
		DonationID: d.ID,
		CampaignID: d.CampaignID,
		TxRef:      d.TxRef,
		Status:     string(domain.DonationStatusFailed),
		Amount:     d.Amount,
		Currency:   d.Currency,
		Source:     source,
	})
}

func (p *DonationEventPublisher) Close() error {
	return p.writer.Close()
}
