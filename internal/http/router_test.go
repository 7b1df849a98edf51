package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httpH "github.com/yungbote/databanana-backend/internal/http/handlers"
	httpMW "github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/platform/auth"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/services"
)

type rejectAll struct{}

func (rejectAll) Verify(string) (*auth.Claims, error) { return nil, auth.ErrInvalidToken }

type publicOnly struct{ services.GenerationService }

func (publicOnly) ListPublic(context.Context, int) ([]services.ItemView, error) {
	return []services.ItemView{{ID: uuid.New(), Public: true}}, nil
}

func TestRouterProtectsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	r := NewRouter(RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, rejectAll{}, nil, false),
		UserHandler:    httpH.NewUserHandler(nil),
		HealthHandler:  httpH.NewHealthHandler(),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id not echoed")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("/api/me without token: %d", rec.Code)
	}
}

func TestRouterServesPublicGalleryWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	r := NewRouter(RouterConfig{
		Log:               log,
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, rejectAll{}, nil, false),
		GenerationHandler: httpH.NewGenerationHandler(log, publicOnly{}, realtime.NewSSEHub(log)),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/public", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/images/public: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("/api/generations without token: %d", rec.Code)
	}
}
