package app

import (
	httpH "github.com/yungbote/databanana-backend/internal/http/handlers"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/realtime"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	User       *httpH.UserHandler
	Generation *httpH.GenerationHandler
	Gallery    *httpH.GalleryHandler
	Payment    *httpH.PaymentHandler
	Blob       *httpH.BlobHandler
}

func wireHandlers(log *logger.Logger, s Services, hub *realtime.SSEHub, blobs *blobStore) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:     httpH.NewHealthHandler(),
		User:       httpH.NewUserHandler(s.Users),
		Generation: httpH.NewGenerationHandler(log, s.Generations, hub),
		Gallery:    httpH.NewGalleryHandler(s.Gallery),
		Payment:    httpH.NewPaymentHandler(log, s.Payments),
	}
	if blobs != nil && blobs.memory != nil {
		h.Blob = httpH.NewBlobHandler(blobs.memory)
	}
	return h
}
