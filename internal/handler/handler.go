// internal/handler/handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"donation-service/internal/domain"
	"donation-service/internal/provider"
	"donation-service/internal/usecase"
	"donation-service/pkg/response"
	"donation-service/pkg/xerrors"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type CampaignService interface {
	Create(ctx context.Context, ownerID string, req *domain.CreateCampaignRequest) (*domain.Campaign, error)
	List(ctx context.Context, limit int) ([]*domain.Campaign, error)
	Get(ctx context.Context, campaignID string) (*domain.Campaign, error)
}

type DonationService interface {
	CreateIntent(ctx context.Context, campaignID string, req *domain.DonateRequest) (*domain.Intent, error)
	GetByTxRef(ctx context.Context, txRef string) (*domain.Donation, error)
}

type ReconcileService interface {
	HandleWebhook(ctx context.Context, payload []byte, token string) (domain.NotificationOutcome, error)
	Verify(ctx context.Context, txRef string) (*provider.TransactionView, error)
	Reconcile(ctx context.Context, txRef string) (*usecase.ReconcileResult, error)
	Notifications(ctx context.Context, txRef string) ([]*domain.NotificationRecord, error)
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and hidden behind a 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, xerrors.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, xerrors.ErrAuthenticationFailed):
		response.Error(w, http.StatusUnauthorized, "invalid webhook signature")
	case errors.Is(err, xerrors.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, xerrors.ErrConflict):
		response.Error(w, http.StatusConflict, "conflict")
	case errors.Is(err, xerrors.ErrGateway):
		logger.Warn("payment gateway error", zap.Error(err))
		response.Error(w, http.StatusBadGateway, "payment gateway error")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, xerrors.ErrInternalServer.Error())
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", xerrors.ErrInvalidRequest)
	}
	return nil
}
