// internal/repository/notification_repo.go
package repository

import (
	"context"
	"fmt"

	"donation-service/internal/domain"
)

// NotificationRepository is the append-only audit log of provider
// notifications.
type NotificationRepository interface {
	Record(ctx context.Context, rec *domain.NotificationRecord) error
	ListByTxRef(ctx context.Context, txRef string) ([]*domain.NotificationRecord, error)
}

type notificationRepo struct {
	db DB
}

func NewNotificationRepository(db DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Record(ctx context.Context, rec *domain.NotificationRecord) error {
	query := `
		INSERT INTO provider_notifications (
			source, event, tx_ref, provider_tx_id, donation_id, status, outcome, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	var payload []byte
	if len(rec.Payload) > 0 {
		payload = rec.Payload
	}

	err := r.db.QueryRow(ctx, query,
		rec.Source,
		rec.Event,
		rec.TxRef,
		rec.ProviderTxID,
		rec.DonationID,
		rec.Status,
		rec.Outcome,
		payload,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	return nil
}

func (r *notificationRepo) ListByTxRef(ctx context.Context, txRef string) ([]*domain.NotificationRecord, error) {
	query := `
		SELECT id, source, event, tx_ref, provider_tx_id, donation_id, status,
			outcome, payload, created_at
		FROM provider_notifications
		WHERE tx_ref = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, txRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.NotificationRecord, 0)
	for rows.Next() {
		var rec domain.NotificationRecord
		var payload []byte
		err := rows.Scan(
			&rec.ID,
			&rec.Source,
			&rec.Event,
			&rec.TxRef,
			&rec.ProviderTxID,
			&rec.DonationID,
			&rec.Status,
			&rec.Outcome,
			&payload,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		rec.Payload = payload
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}

	return records, nil
}
