package usecase

import (
	"context"
	"sync"

	"donation-service/internal/domain"
	"donation-service/internal/provider"
	"donation-service/pkg/xerrors"

	"github.com/shopspring/decimal"
)

// memStore mimics the postgres stores. MarkSuccessful holds the lock for the
// whole check-update-increment sequence, like the row lock does.
type memStore struct {
	mu            sync.Mutex
	campaigns     map[string]*domain.Campaign
	donations     map[string]*domain.Donation
	notifications []*domain.NotificationRecord
	increments    int
	failCreate    error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*domain.Campaign),
		donations: make(map[string]*domain.Donation),
	}
}

func (s *memStore) addCampaign(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id] = &domain.Campaign{ID: id, Title: id, Goal: decimal.NewFromInt(1000)}
}

func (s *memStore) addDonation(d *domain.Donation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.donations[d.ID] = &cp
}

func (s *memStore) collected(campaignID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[campaignID].Collected
}

func (s *memStore) donation(id string) domain.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.donations[id]
}

func (s *memStore) donationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.donations)
}

func (s *memStore) incrementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increments
}

func (s *memStore) auditOutcomes() []domain.NotificationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NotificationOutcome, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n.Outcome)
	}
	return out
}

type campaignStore struct{ *memStore }

func (s campaignStore) Create(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; ok {
		return xerrors.ErrConflict
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s campaignStore) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s campaignStore) List(_ context.Context, _ int) ([]*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type donationStore struct{ *memStore }

func (s donationStore) Create(_ context.Context, d *domain.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, existing := range s.donations {
		if existing.TxRef == d.TxRef {
			return xerrors.ErrConflict
		}
	}
	cp := *d
	s.donations[d.ID] = &cp
	return nil
}

func (s donationStore) GetByID(_ context.Context, id string) (*domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s donationStore) GetByTxRef(_ context.Context, txRef string) (*domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.donations {
		if d.TxRef == txRef {
			cp := *d
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s donationStore) MarkSuccessful(_ context.Context, id, providerTxID string) (*domain.Settlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok || d.Status != domain.DonationStatusPending {
		return nil, false, nil
	}
	c, ok := s.campaigns[d.CampaignID]
	if !ok {
		return nil, false, xerrors.ErrNotFound
	}
	d.Status = domain.DonationStatusSuccessful
	if providerTxID != "" {
		ptx := providerTxID
		d.ProviderTxID = &ptx
	}
	c.Collected = c.Collected.Add(d.Amount)
	s.increments++
	return &domain.Settlement{
		DonationID:   d.ID,
		CampaignID:   d.CampaignID,
		TxRef:        d.TxRef,
		Amount:       d.Amount,
		Currency:     d.Currency,
		ProviderTxID: providerTxID,
		Collected:    c.Collected,
	}, true, nil
}

func (s donationStore) MarkFailed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok || d.Status != domain.DonationStatusPending {
		return false, nil
	}
	d.Status = domain.DonationStatusFailed
	return true, nil
}

type notificationStore struct{ *memStore }

func (s notificationStore) Record(_ context.Context, rec *domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.notifications) + 1)
	s.notifications = append(s.notifications, rec)
	return nil
}

func (s notificationStore) ListByTxRef(_ context.Context, txRef string) ([]*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.NotificationRecord
	for _, n := range s.notifications {
		if n.TxRef != nil && *n.TxRef == txRef {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	link     string
	err      error
	view     *provider.TransactionView
	sessions []*provider.PaymentSessionRequest
}

func (g *fakeGateway) GetName() string { return "fake" }

func (g *fakeGateway) CreatePaymentSession(_ context.Context, req *provider.PaymentSessionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, req)
	if g.err != nil {
		return "", g.err
	}
	return g.link, nil
}

func (g *fakeGateway) VerifyByReference(_ context.Context, _ string) (*provider.TransactionView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.view, nil
}

type fakeCache struct {
	mu      sync.Mutex
	settled map[string]string
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{settled: make(map[string]string)}
}

func (c *fakeCache) IsSettled(_ context.Context, txRef string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.settled[txRef]
	return ok, nil
}

func (c *fakeCache) MarkSettled(_ context.Context, txRef, donationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.settled[txRef] = donationID
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEvents) record(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, kind)
}

func (e *fakeEvents) PublishDonationCreated(_ context.Context, _ *domain.Donation) error {
	e.record("donation.created")
	return nil
}

func (e *fakeEvents) PublishDonationSuccessful(_ context.Context, _ *domain.Settlement, _ string) error {
	e.record("donation.successful")
	return nil
}

func (e *fakeEvents) PublishDonationFailed(_ context.Context, _ *domain.Donation, _ string) error {
	e.record("donation.failed")
	return nil
}

func (e *fakeEvents) count(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, k := range e.events {
		if k == kind {
			n++
		}
	}
	return n
}
