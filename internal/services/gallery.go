package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

// ReviewInput holds the review flags a user may toggle on an item. Nil
// fields are left unchanged.
type ReviewInput struct {
	Selected *bool `json:"selected"`
	Rejected *bool `json:"rejected"`
	Public   *bool `json:"public"`
}

type GalleryService interface {
	ListDatasets(ctx context.Context, userID uuid.UUID) ([]*domain.Dataset, error)
	ReviewImage(ctx context.Context, userID, imageID uuid.UUID, in ReviewInput) (*domain.Image, error)
}

type galleryService struct {
	log   *logger.Logger
	repos repos.Repos
}

func NewGalleryService(baseLog *logger.Logger, r repos.Repos) GalleryService {
	return &galleryService{log: baseLog.With("service", "GalleryService"), repos: r}
}

func (s *galleryService) ListDatasets(ctx context.Context, userID uuid.UUID) ([]*domain.Dataset, error) {
	return s.repos.Datasets.ListByUser(dbctx.New(ctx), userID)
}

func (s *galleryService) ReviewImage(ctx context.Context, userID, imageID uuid.UUID, in ReviewInput) (*domain.Image, error) {
	updates := map[string]interface{}{}
	if in.Selected != nil {
		updates["selected"] = *in.Selected
	}
	if in.Rejected != nil {
		updates["rejected"] = *in.Rejected
	}
	if in.Public != nil {
		updates["public"] = *in.Public
	}
	img, err := s.repos.Images.UpdateReview(dbctx.New(ctx), userID, imageID, updates)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return img, nil
}
