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

type BatchRepo interface {
	Create(dbc dbctx.Context, b *domain.Batch) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Batch, error)
	GetByExecutionID(dbc dbctx.Context, executionID string) (*domain.Batch, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Batch, error)
	// UpdateProgress moves the step forward without ever lowering progress.
	// Terminal batches are left untouched.
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, step string, progress int, errMsg string) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, step string, imageCount int) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, step string, errMsg string) (bool, error)
	// SetRefunded records the refund on a failed batch that has none yet.
	SetRefunded(dbc dbctx.Context, id uuid.UUID, cents int64) (bool, error)
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

func (r *batchRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *batchRepo) Create(dbc dbctx.Context, b *domain.Batch) error {
	return r.tx(dbc).Create(b).Error
}

func (r *batchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Batch, error) {
	var b domain.Batch
	if err := r.tx(dbc).Where("id = ?", id).Take(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) GetByExecutionID(dbc dbctx.Context, executionID string) (*domain.Batch, error) {
	var b domain.Batch
	if err := r.tx(dbc).Where("execution_id = ?", executionID).Take(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("batch for execution %s: %w", executionID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Batch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.Batch
	err := r.tx(dbc).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *batchRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, step string, progress int, errMsg string) error {
	updates := map[string]interface{}{
		"step":       step,
		"progress":   gorm.Expr("CASE WHEN progress < ? THEN ? ELSE progress END", progress, progress),
		"updated_at": time.Now().UTC(),
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.tx(dbc).
		Model(&domain.Batch{}).
		Where("id = ? AND status = ?", id, domain.BatchStatusProcessing).
		Updates(updates).Error
}

func (r *batchRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&domain.Batch{}).Where("id = ?", id).Updates(updates).Error
}

func (r *batchRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, step string, imageCount int) (bool, error) {
	now := time.Now().UTC()
	res := r.tx(dbc).
		Model(&domain.Batch{}).
		Where("id = ? AND status = ?", id, domain.BatchStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.BatchStatusCompleted,
			"step":         step,
			"progress":     100,
			"image_count":  imageCount,
			"error":        "",
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkFailed transitions a processing batch to failed. It reports false when
// the batch was already terminal.
func (r *batchRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, step string, errMsg string) (bool, error) {
	now := time.Now().UTC()
	res := r.tx(dbc).
		Model(&domain.Batch{}).
		Where("id = ? AND status = ?", id, domain.BatchStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.BatchStatusFailed,
			"step":         step,
			"progress":     0,
			"error":        errMsg,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *batchRepo) SetRefunded(dbc dbctx.Context, id uuid.UUID, cents int64) (bool, error) {
	res := r.tx(dbc).
		Model(&domain.Batch{}).
		Where("id = ? AND status = ? AND refunded_cents = 0", id, domain.BatchStatusFailed).
		Updates(map[string]interface{}{
			"refunded_cents": cents,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}
