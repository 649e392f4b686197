package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"donation-service/config"
	"donation-service/internal/domain"
	"donation-service/pkg/id"
	"donation-service/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newDonationUsecase(store *memStore, gw *fakeGateway, events EventPublisher) *DonationUsecase {
	return NewDonationUsecase(
		campaignStore{store},
		donationStore{store},
		gw,
		events,
		config.AppConfig{
			BaseURL:         "https://give.example.org",
			DefaultCurrency: "ZMW",
			TxRefPrefix:     "dnt",
		},
		zap.NewNop(),
	)
}

func TestCreateIntent(t *testing.T) {
	store := newMemStore()
	store.addCampaign("C1")
	gw := &fakeGateway{link: "https://checkout.example/pay/abc"}
	events := &fakeEvents{}
	uc := newDonationUsecase(store, gw, events)

	intent, err := uc.CreateIntent(context.Background(), "C1", &domain.DonateRequest{
		Name:   "Ada",
		Amount: decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	if intent.Link != gw.link {
		t.Errorf("link = %q, want %q", intent.Link, gw.link)
	}
	if !id.HasPrefix(intent.DonationID, id.PrefixDonation) {
		t.Errorf("donation id %q is not a donation id", intent.DonationID)
	}

	rest, ok := strings.CutPrefix(intent.TxRef, "dnt_C1_")
	if !ok {
		t.Fatalf("tx_ref %q missing prefix and campaign", intent.TxRef)
	}
	if _, err := uuid.Parse(rest); err != nil {
		t.Errorf("tx_ref suffix %q is not a uuid: %v", rest, err)
	}

	d := store.donation(intent.DonationID)
	if d.Status != domain.DonationStatusPending {
		t.Errorf("status = %s, want pending", d.Status)
	}
	if d.TxRef != intent.TxRef || d.CampaignID != "C1" || !d.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("unexpected donation %+v", d)
	}

	if len(gw.sessions) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(gw.sessions))
	}
	s := gw.sessions[0]
	if s.Reference != intent.TxRef || s.Currency != "ZMW" {
		t.Errorf("unexpected session %+v", s)
	}
	if s.Customer.Name != "Ada" || s.Customer.Email != DefaultDonorEmail {
		t.Errorf("customer = %+v", s.Customer)
	}
	if s.Metadata["campaignId"] != "C1" || s.Metadata["donationId"] != intent.DonationID {
		t.Errorf("metadata = %v", s.Metadata)
	}
	wantRedirect := "https://give.example.org/payment-complete?tx_ref=" + intent.TxRef
	if s.RedirectURL != wantRedirect {
		t.Errorf("redirect = %q, want %q", s.RedirectURL, wantRedirect)
	}

	uc.Wait()
	if n := events.count("donation.created"); n != 1 {
		t.Errorf("published %d donation.created events, want 1", n)
	}
}

func TestCreateIntentFreshReferenceEachTime(t *testing.T) {
	store := newMemStore()
	store.addCampaign("C1")
	uc := newDonationUsecase(store, &fakeGateway{link: "https://pay"}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		intent, err := uc.CreateIntent(context.Background(), "C1", &domain.DonateRequest{Amount: decimal.NewFromInt(5)})
		if err != nil {
			t.Fatalf("CreateIntent: %v", err)
		}
		if seen[intent.TxRef] {
			t.Fatalf("tx_ref %q reused", intent.TxRef)
		}
		seen[intent.TxRef] = true
	}
	if n := store.donationCount(); n != 10 {
		t.Errorf("stored %d donations, want 10", n)
	}
}

func TestCreateIntentCustomRedirectAndAnonymousDonor(t *testing.T) {
	store := newMemStore()
	store.addCampaign("C1")
	gw := &fakeGateway{link: "https://pay"}
	uc := newDonationUsecase(store, gw, nil)

	_, err := uc.CreateIntent(context.Background(), "C1", &domain.DonateRequest{
		Amount:      decimal.RequireFromString("12.50"),
		RedirectURL: "https://app.example/thanks",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	s := gw.sessions[0]
	if s.RedirectURL != "https://app.example/thanks" {
		t.Errorf("redirect = %q", s.RedirectURL)
	}
	if s.Customer.Name != DefaultDonorName || s.Customer.Email != DefaultDonorEmail {
		t.Errorf("customer = %+v", s.Customer)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	tests := []struct {
		name string
		req  domain.DonateRequest
	}{
		{"zero amount", domain.DonateRequest{Amount: decimal.Zero}},
		{"negative amount", domain.DonateRequest{Amount: decimal.NewFromInt(-5)}},
		{"bad email", domain.DonateRequest{Amount: decimal.NewFromInt(5), Email: "not-an-email"}},
		{"sub-cent amount", domain.DonateRequest{Amount: decimal.RequireFromString("0.004")}},
		{"more precision than stored", domain.DonateRequest{Amount: decimal.RequireFromString("200.129")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addCampaign("C1")
			gw := &fakeGateway{link: "https://pay"}
			uc := newDonationUsecase(store, gw, nil)

			req := tt.req
			_, err := uc.CreateIntent(context.Background(), "C1", &req)
			if !errors.Is(err, xerrors.ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
			if n := store.donationCount(); n != 0 {
				t.Errorf("persisted %d donations, want 0", n)
			}
			if len(gw.sessions) != 0 {
				t.Errorf("gateway called %d times, want 0", len(gw.sessions))
			}
		})
	}
}

func TestCreateIntentUnknownCampaign(t *testing.T) {
	store := newMemStore()
	uc := newDonationUsecase(store, &fakeGateway{link: "https://pay"}, nil)

	_, err := uc.CreateIntent(context.Background(), "missing", &domain.DonateRequest{Amount: decimal.NewFromInt(5)})
	if !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := store.donationCount(); n != 0 {
		t.Errorf("persisted %d donations, want 0", n)
	}
}

func TestCreateIntentGatewayFailureKeepsPending(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
	}{
		{"gateway error", &fakeGateway{err: xerrors.ErrGateway}},
		{"plain error", &fakeGateway{err: errors.New("dial tcp: refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addCampaign("C1")
			uc := newDonationUsecase(store, tt.gw, nil)

			_, err := uc.CreateIntent(context.Background(), "C1", &domain.DonateRequest{Amount: decimal.NewFromInt(5)})
			if !errors.Is(err, xerrors.ErrGateway) {
				t.Fatalf("err = %v, want ErrGateway", err)
			}
			if n := store.donationCount(); n != 1 {
				t.Fatalf("persisted %d donations, want 1", n)
			}
			if got := store.collected("C1"); !got.IsZero() {
				t.Errorf("collected = %s, want 0", got)
			}
		})
	}
}

func TestCreateIntentStoreFailure(t *testing.T) {
	store := newMemStore()
	store.addCampaign("C1")
	store.failCreate = errors.New("db down")
	gw := &fakeGateway{link: "https://pay"}
	uc := newDonationUsecase(store, gw, nil)

	if _, err := uc.CreateIntent(context.Background(), "C1", &domain.DonateRequest{Amount: decimal.NewFromInt(5)}); err == nil {
		t.Fatal("expected error")
	}
	if len(gw.sessions) != 0 {
		t.Errorf("gateway called after store failure")
	}
}
