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

type UserRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*domain.User, error)
	GetOrCreate(dbc dbctx.Context, externalID, email string, initialCredits int64) (*domain.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := r.tx(dbc).Where("id = ?", id).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*domain.User, error) {
	var u domain.User
	if err := r.tx(dbc).Where("external_id = ?", externalID).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with external id: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreate resolves the identity provider subject to a user row, creating
// it on first sight. Concurrent first requests converge on one row.
func (r *userRepo) GetOrCreate(dbc dbctx.Context, externalID, email string, initialCredits int64) (*domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("external id required: %w", domain.ErrInvalidArgument)
	}
	u := &domain.User{ExternalID: externalID, Email: strings.TrimSpace(email), CreditsCents: initialCredits}
	err := r.tx(dbc).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return r.GetByExternalID(dbc, externalID)
}
