package repos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

// LedgerRepo moves credits on the users table. Every movement is recorded in
// ledger_entries under a unique idempotency key inside the same transaction,
// so a replayed movement changes nothing.
type LedgerRepo interface {
	Balance(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	// Apply adds amountCents (negative for a debit) to the user's balance.
	// It returns false with a nil error when the key was already applied.
	Apply(dbc dbctx.Context, userID uuid.UUID, amountCents int64, key, reason string) (bool, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error)
}

type ledgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{db: db, log: baseLog.With("repo", "LedgerRepo")}
}

func (r *ledgerRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *ledgerRepo) Balance(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	var u domain.User
	err := r.tx(dbc).Select("id", "credits_cents").Where("id = ?", userID).Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("ledger for user %s: %w", userID, domain.ErrNotFound)
		}
		return 0, err
	}
	return u.CreditsCents, nil
}

func (r *ledgerRepo) Apply(dbc dbctx.Context, userID uuid.UUID, amountCents int64, key, reason string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("ledger idempotency key required: %w", domain.ErrInvalidArgument)
	}
	if amountCents == 0 {
		return false, fmt.Errorf("ledger amount must be non-zero: %w", domain.ErrInvalidArgument)
	}
	applied := false
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		entry := &domain.LedgerEntry{
			UserID:         userID,
			IdempotencyKey: key,
			AmountCents:    amountCents,
			Reason:         reason,
		}
		res := txx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		q := txx.Model(&domain.User{}).Where("id = ?", userID)
		if amountCents < 0 {
			q = q.Where("credits_cents >= ?", -amountCents)
		}
		upd := q.Update("credits_cents", gorm.Expr("credits_cents + ?", amountCents))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			var n int64
			if err := txx.Model(&domain.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("ledger for user %s: %w", userID, domain.ErrNotFound)
			}
			return fmt.Errorf("debit %d cents: %w", -amountCents, domain.ErrInsufficientBalance)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *ledgerRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*domain.LedgerEntry
	err := r.tx(dbc).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
