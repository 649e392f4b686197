// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"donation-service/internal/domain"
	"donation-service/pkg/response"
	"donation-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WebhookHashHeader carries the shared secret Flutterwave sends with each
// webhook.
const WebhookHashHeader = "verif-hash"

type ackResponse struct {
	Status string `json:"status"`
}

type WebhookHandler struct {
	reconcileUC ReconcileService
	logger      *zap.Logger
}

func NewWebhookHandler(reconcileUC ReconcileService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconcileUC: reconcileUC,
		logger:      logger,
	}
}

// HandleFlutterwaveWebhook handles POST /flutterwave/webhook. It answers only
// after the notification has been durably applied, so a non-2xx makes the
// provider retry.
func (h *WebhookHandler) HandleFlutterwaveWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: failed to read body", xerrors.ErrInvalidRequest))
		return
	}

	outcome, err := h.reconcileUC.HandleWebhook(r.Context(), payload, r.Header.Get(WebhookHashHeader))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := "ok"
	if outcome == domain.OutcomeIgnored {
		status = "ignored"
	}
	response.Raw(w, http.StatusOK, ackResponse{Status: status})
}

// Verify handles GET /flutterwave/verify/{tx_ref} and relays the provider's
// answer as-is.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	view, err := h.reconcileUC.Verify(r.Context(), chi.URLParam(r, "tx_ref"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if len(view.Raw) > 0 {
		response.Raw(w, http.StatusOK, json.RawMessage(view.Raw))
		return
	}
	response.Raw(w, http.StatusOK, view)
}

// Reconcile handles POST /flutterwave/reconcile/{tx_ref}
func (h *WebhookHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconcileUC.Reconcile(r.Context(), chi.URLParam(r, "tx_ref"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Notifications handles GET /flutterwave/notifications/{tx_ref}
func (h *WebhookHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	records, err := h.reconcileUC.Notifications(r.Context(), chi.URLParam(r, "tx_ref"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, records)
}
