package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/databanana-backend/internal/http/handlers"
	httpMW "github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	TracingEnabled bool

	AuthMiddleware    *httpMW.AuthMiddleware
	UserHandler       *httpH.UserHandler
	GenerationHandler *httpH.GenerationHandler
	GalleryHandler    *httpH.GalleryHandler
	PaymentHandler    *httpH.PaymentHandler
	BlobHandler       *httpH.BlobHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.BlobHandler != nil {
		r.GET("/blobs/*key", cfg.BlobHandler.Get)
	}

	api := r.Group("/api")
	{
		// Stripe calls this without a user token.
		if cfg.PaymentHandler != nil {
			api.POST("/payments/webhook", cfg.PaymentHandler.Webhook)
		}
		// Shared gallery, readable without signing in.
		if cfg.GenerationHandler != nil {
			api.GET("/images/public", cfg.GenerationHandler.ListPublic)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
		}

		// Generations
		if cfg.GenerationHandler != nil {
			protected.POST("/generations", cfg.GenerationHandler.Submit)
			protected.GET("/generations", cfg.GenerationHandler.List)
			protected.GET("/generations/:id", cfg.GenerationHandler.Get)
			protected.GET("/generations/:id/events", cfg.GenerationHandler.Events)
		}

		// Gallery
		if cfg.GalleryHandler != nil {
			protected.GET("/datasets", cfg.GalleryHandler.ListDatasets)
			protected.PATCH("/images/:id", cfg.GalleryHandler.ReviewImage)
		}

		if cfg.PaymentHandler != nil {
			protected.POST("/payments/checkout", cfg.PaymentHandler.CreateCheckout)
		}
	}

	return r
}
