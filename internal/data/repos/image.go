package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type ImageRepo interface {
	// ReplaceForBatch swaps the batch's image rows for images in one transaction.
	ReplaceForBatch(dbc dbctx.Context, batchID uuid.UUID, images []*domain.Image) error
	ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*domain.Image, error)
	// ListPublic returns the newest images any user has shared.
	ListPublic(dbc dbctx.Context, limit int) ([]*domain.Image, error)
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*domain.Image, error)
	UpdateReview(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) (*domain.Image, error)
}

type imageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRepo(db *gorm.DB, baseLog *logger.Logger) ImageRepo {
	return &imageRepo{db: db, log: baseLog.With("repo", "ImageRepo")}
}

func (r *imageRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *imageRepo) ReplaceForBatch(dbc dbctx.Context, batchID uuid.UUID, images []*domain.Image) error {
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("batch_id = ?", batchID).Delete(&domain.Image{}).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		for _, img := range images {
			img.BatchID = batchID
		}
		return txx.CreateInBatches(images, 100).Error
	})
}

func (r *imageRepo) ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*domain.Image, error) {
	var out []*domain.Image
	err := r.tx(dbc).Where("batch_id = ?", batchID).Order("position ASC").Find(&out).Error
	return out, err
}

func (r *imageRepo) ListPublic(dbc dbctx.Context, limit int) ([]*domain.Image, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var out []*domain.Image
	err := r.tx(dbc).
		Where("public = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *imageRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*domain.Image, error) {
	var img domain.Image
	if err := r.tx(dbc).Where("id = ? AND user_id = ?", id, userID).Take(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("image %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &img, nil
}

var reviewColumns = map[string]bool{"selected": true, "rejected": true, "public": true}

func (r *imageRepo) UpdateReview(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) (*domain.Image, error) {
	clean := map[string]interface{}{}
	for k, v := range updates {
		if reviewColumns[k] {
			clean[k] = v
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("no review fields: %w", domain.ErrInvalidArgument)
	}
	clean["updated_at"] = time.Now().UTC()
	res := r.tx(dbc).Model(&domain.Image{}).Where("id = ? AND user_id = ?", id, userID).Updates(clean)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("image %s: %w", id, domain.ErrNotFound)
	}
	return r.GetForUser(dbc, userID, id)
}
