package usecase

import (
	"context"
	"sync"
	"time"

	"donation-service/internal/domain"
)

// SettlementCache is the settled-tx_ref fast path. May be nil.
type SettlementCache interface {
	IsSettled(ctx context.Context, txRef string) (bool, error)
	MarkSettled(ctx context.Context, txRef, donationID string) error
}

// EventPublisher emits donation lifecycle events. May be nil.
type EventPublisher interface {
	PublishDonationCreated(ctx context.Context, d *domain.Donation) error
	PublishDonationSuccessful(ctx context.Context, s *domain.Settlement, source string) error
	PublishDonationFailed(ctx context.Context, d *domain.Donation, source string) error
}

const backgroundTimeout = 5 * time.Second

// background runs best-effort side effects outside the request path.
// After Close it drops new work, so a late request cannot race the drain.
type background struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Go reports false when fn was dropped because Close has started.
func (b *background) Go(ctx context.Context, fn func(ctx context.Context)) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Wait blocks until running work is done. New work is still accepted.
func (b *background) Wait() {
	b.wg.Wait()
}

// Close stops accepting work and waits for what is running.
func (b *background) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
