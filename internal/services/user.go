package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type Me struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Credits      float64   `json:"credits"`
	CreditsCents int64     `json:"credits_cents"`
}

type UserService interface {
	// Resolve maps an identity provider subject to a user, creating the
	// user on first sight with the signup grant.
	Resolve(ctx context.Context, externalID, email string) (*domain.User, error)
	GetMe(ctx context.Context, userID uuid.UUID) (*Me, error)
}

type userService struct {
	log           *logger.Logger
	users         repos.UserRepo
	signupCredits int64
}

func NewUserService(baseLog *logger.Logger, users repos.UserRepo, signupCredits int64) UserService {
	if signupCredits < 0 {
		signupCredits = 0
	}
	return &userService{log: baseLog.With("service", "UserService"), users: users, signupCredits: signupCredits}
}

func (s *userService) Resolve(ctx context.Context, externalID, email string) (*domain.User, error) {
	u, err := s.users.GetOrCreate(dbctx.New(ctx), externalID, email, s.signupCredits)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return u, nil
}

func (s *userService) GetMe(ctx context.Context, userID uuid.UUID) (*Me, error) {
	u, err := s.users.GetByID(dbctx.New(ctx), userID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &Me{
		ID:           u.ID,
		Email:        u.Email,
		Credits:      pipeline.Dollars(u.CreditsCents),
		CreditsCents: u.CreditsCents,
	}, nil
}
