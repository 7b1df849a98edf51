package app

import (
	httpapi "github.com/yungbote/databanana-backend/internal/http"
	"github.com/yungbote/databanana-backend/internal/observability"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, h Handlers, mw Middleware) *httpapi.Server {
	log.Info("Wiring router...")
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:               log,
		ServiceName:       cfg.ServiceName,
		TracingEnabled:    observability.Enabled(),
		AuthMiddleware:    mw.Auth,
		UserHandler:       h.User,
		GenerationHandler: h.Generation,
		GalleryHandler:    h.Gallery,
		PaymentHandler:    h.Payment,
		BlobHandler:       h.Blob,
		HealthHandler:     h.Health,
	})
}
