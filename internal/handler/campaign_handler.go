// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strconv"

	"donation-service/internal/domain"
	"donation-service/internal/middleware"
	"donation-service/pkg/response"
	"donation-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignUC CampaignService
	donationUC DonationService
	logger     *zap.Logger
}

func NewCampaignHandler(campaignUC CampaignService, donationUC DonationService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaignUC: campaignUC,
		donationUC: donationUC,
		logger:     logger,
	}
}

// List handles GET /campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	campaigns, err := h.campaignUC.List(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, campaigns)
}

// Get handles GET /campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.campaignUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, campaign)
}

// Create handles POST /campaigns. The owner is the authenticated caller.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, h.logger, xerrors.ErrUnauthorized)
		return
	}

	var req domain.CreateCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	campaign, err := h.campaignUC.Create(r.Context(), ownerID, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, campaign)
}

// Donate handles POST /campaigns/{id}/donate and answers with
// {link, tx_ref, donationId}.
func (h *CampaignHandler) Donate(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var req domain.DonateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	intent, err := h.donationUC.CreateIntent(r.Context(), campaignID, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.Raw(w, http.StatusOK, intent)
}

// GetDonation handles GET /donations/{tx_ref}
func (h *CampaignHandler) GetDonation(w http.ResponseWriter, r *http.Request) {
	donation, err := h.donationUC.GetByTxRef(r.Context(), chi.URLParam(r, "tx_ref"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, donation)
}
