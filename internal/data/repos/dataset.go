package repos

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type DatasetRepo interface {
	Create(dbc dbctx.Context, ds *domain.Dataset) error
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*domain.Dataset, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Dataset, error)
}

type datasetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger) DatasetRepo {
	return &datasetRepo{db: db, log: baseLog.With("repo", "DatasetRepo")}
}

func (r *datasetRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *datasetRepo) Create(dbc dbctx.Context, ds *domain.Dataset) error {
	return r.tx(dbc).Create(ds).Error
}

func (r *datasetRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*domain.Dataset, error) {
	var ds domain.Dataset
	err := r.tx(dbc).Where("id = ? AND user_id = ?", id, userID).Take(&ds).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dataset %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &ds, nil
}

func (r *datasetRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Dataset, error) {
	var out []*domain.Dataset
	err := r.tx(dbc).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}
