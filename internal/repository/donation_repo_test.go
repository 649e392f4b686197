package repository

import (
	"context"
	"errors"
	"testing"

	"donation-service/internal/domain"
	"donation-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
)

const (
	settleDonationSQL = `(?s)UPDATE donations.*SET status = 'successful'.*WHERE id = \$1 AND status = 'pending'.*RETURNING campaign_id, tx_ref, amount, currency`
	incrementSQL      = `(?s)UPDATE campaigns.*SET collected = collected \+ \$2.*WHERE id = \$1.*RETURNING collected`
	failDonationSQL   = `(?s)UPDATE donations.*SET status = 'failed'.*WHERE id = \$1 AND status = 'pending'`
)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// decimalArg matches a decimal argument by value, ignoring its exponent.
type decimalArg struct{ want decimal.Decimal }

func (a decimalArg) Match(v any) bool {
	d, ok := v.(decimal.Decimal)
	return ok && d.Equal(a.want)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, DonationRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewDonationRepository(mock)
}

func settledRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"campaign_id", "tx_ref", "amount", "currency"}).
		AddRow("C1", "T1", "200.00", "ZMW")
}

func TestMarkSuccessfulCommitsSettlement(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(settleDonationSQL).
		WithArgs("D1", "PTX1").
		WillReturnRows(settledRow())
	mock.ExpectQuery(incrementSQL).
		WithArgs("C1", decimalArg{decimal.NewFromInt(200)}).
		WillReturnRows(pgxmock.NewRows([]string{"collected"}).AddRow("1200.00"))
	mock.ExpectCommit()

	s, applied, err := repo.MarkSuccessful(context.Background(), "D1", "PTX1")
	if err != nil {
		t.Fatalf("MarkSuccessful: %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}
	if s.CampaignID != "C1" || s.TxRef != "T1" || s.Currency != "ZMW" || s.ProviderTxID != "PTX1" {
		t.Errorf("settlement = %+v", s)
	}
	if !s.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("amount = %s, want 200", s.Amount)
	}
	if !s.Collected.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("collected = %s, want 1200", s.Collected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkSuccessfulNotPendingSkipsIncrement(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(settleDonationSQL).
		WithArgs("D1", "PTX1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	s, applied, err := repo.MarkSuccessful(context.Background(), "D1", "PTX1")
	if err != nil {
		t.Fatalf("MarkSuccessful: %v", err)
	}
	if applied || s != nil {
		t.Errorf("applied = %v, settlement = %+v; want not applied", applied, s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkSuccessfulIncrementFailureRollsBack(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(settleDonationSQL).
		WithArgs("D1", "PTX1").
		WillReturnRows(settledRow())
	mock.ExpectQuery(incrementSQL).
		WithArgs("C1", decimalArg{decimal.NewFromInt(200)}).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	s, applied, err := repo.MarkSuccessful(context.Background(), "D1", "PTX1")
	if err == nil {
		t.Fatal("expected error")
	}
	if applied || s != nil {
		t.Errorf("applied = %v, settlement = %+v; want not applied", applied, s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkSuccessfulMissingCampaignRollsBack(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(settleDonationSQL).
		WithArgs("D1", "").
		WillReturnRows(settledRow())
	mock.ExpectQuery(incrementSQL).
		WithArgs("C1", decimalArg{decimal.NewFromInt(200)}).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, applied, err := repo.MarkSuccessful(context.Background(), "D1", "")
	if !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if applied {
		t.Error("applied = true, want false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkFailed(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"pending donation", 1, true},
		{"already terminal", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			mock.ExpectExec(failDonationSQL).
				WithArgs("D1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			applied, err := repo.MarkFailed(context.Background(), "D1")
			if err != nil {
				t.Fatalf("MarkFailed: %v", err)
			}
			if applied != tt.want {
				t.Errorf("applied = %v, want %v", applied, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCreateDonationMapsConstraintErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{xerrors.PGUniqueViolation, xerrors.ErrConflict},
		{xerrors.PGForeignKeyViolation, xerrors.ErrNotFound},
		{xerrors.PGCheckViolation, xerrors.ErrInvalidRequest},
		{xerrors.PGNumericOutOfRange, xerrors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			mock.ExpectQuery(`INSERT INTO donations`).
				WillReturnError(&pgconn.PgError{Code: tt.code})

			err := repo.Create(context.Background(), &domain.Donation{
				ID:         "D1",
				TxRef:      "T1",
				CampaignID: "C1",
				Amount:     decimal.RequireFromString("0.01"),
				Currency:   "ZMW",
				Status:     domain.DonationStatusPending,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
