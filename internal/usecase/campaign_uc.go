// internal/usecase/campaign_uc.go
package usecase

import (
	"context"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/internal/repository"
	"donation-service/pkg/id"
	"donation-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CampaignUsecase struct {
	campaignRepo repository.CampaignRepository
	logger       *zap.Logger
}

func NewCampaignUsecase(campaignRepo repository.CampaignRepository, logger *zap.Logger) *CampaignUsecase {
	return &CampaignUsecase{
		campaignRepo: campaignRepo,
		logger:       logger,
	}
}

// Create stores a new campaign owned by ownerID. Collected always starts at 0.
func (uc *CampaignUsecase) Create(ctx context.Context, ownerID string, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidRequest, err)
	}

	campaign := &domain.Campaign{
		ID:               id.GenerateUUID(id.PrefixCampaign),
		Title:            req.Title,
		ShortDescription: optional(req.ShortDescription),
		Description:      optional(req.Description),
		Goal:             req.Goal,
		Collected:        decimal.Zero,
		OwnerID:          optional(ownerID),
	}

	if err := uc.campaignRepo.Create(ctx, campaign); err != nil {
		uc.logger.Error("failed to create campaign",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("owner_id", ownerID),
		zap.String("goal", campaign.Goal.String()))

	return campaign, nil
}

func (uc *CampaignUsecase) List(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	return uc.campaignRepo.List(ctx, limit)
}

func (uc *CampaignUsecase) Get(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	return uc.campaignRepo.GetByID(ctx, campaignID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
