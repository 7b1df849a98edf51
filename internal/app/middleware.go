package app

import (
	"fmt"

	httpMW "github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/platform/auth"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config, s Services) (Middleware, error) {
	log.Info("Wiring middleware...")
	if cfg.AuthDisabled {
		return Middleware{Auth: httpMW.NewAuthMiddleware(log, nil, s.Users, true)}, nil
	}
	verifier, err := auth.NewVerifier(auth.LoadConfig())
	if err != nil {
		return Middleware{}, fmt.Errorf("init token verifier: %w", err)
	}
	return Middleware{Auth: httpMW.NewAuthMiddleware(log, verifier, s.Users, false)}, nil
}
