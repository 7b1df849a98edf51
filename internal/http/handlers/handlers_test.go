package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/apierr"
	"github.com/yungbote/databanana-backend/internal/platform/ctxutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/platform/mockai"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/services"
)

type fakeGenerations struct {
	submitted   []services.SubmitInput
	status      map[string]*services.GenerationStatus
	public      []services.ItemView
	publicLimit int
}

func (f *fakeGenerations) Submit(_ context.Context, in services.SubmitInput) (*services.SubmitResult, error) {
	if in.RequestedCount > 100 {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", nil)
	}
	f.submitted = append(f.submitted, in)
	return &services.SubmitResult{ExecutionID: "exec-1", Status: pipeline.StatusProcessing, EstimatedCostCents: int64(in.RequestedCount) * 5}, nil
}

func (f *fakeGenerations) Status(_ context.Context, _ uuid.UUID, id string, _ bool) (*services.GenerationStatus, error) {
	st, ok := f.status[id]
	if !ok {
		return nil, apierr.New(http.StatusNotFound, "not_found", nil)
	}
	return st, nil
}

func (f *fakeGenerations) List(context.Context, uuid.UUID, int) ([]*services.GenerationStatus, error) {
	out := make([]*services.GenerationStatus, 0, len(f.status))
	for _, st := range f.status {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeGenerations) ListPublic(_ context.Context, limit int) ([]services.ItemView, error) {
	f.publicLimit = limit
	return f.public, nil
}

func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func generationRouter(gens *fakeGenerations) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGenerationHandler(logger.Nop(), gens, realtime.NewSSEHub(logger.Nop()))
	r := gin.New()
	api := r.Group("/api", asUser(uuid.New()))
	api.POST("/generations", h.Submit)
	api.GET("/generations", h.List)
	api.GET("/generations/:id", h.Get)
	api.GET("/generations/:id/events", h.Events)
	return r
}

func TestSubmitAcceptsRequest(t *testing.T) {
	gens := &fakeGenerations{}
	r := generationRouter(gens)

	body := `{"request_text":"red apples","exclusions":"leaves, , stems","requested_count":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/generations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
	if len(gens.submitted) != 1 {
		t.Fatalf("submitted: %d", len(gens.submitted))
	}
	in := gens.submitted[0]
	if in.RequestedCount != 10 || in.IdempotencyKey != "abc" || in.DatasetID != nil {
		t.Fatalf("input: %+v", in)
	}
	if len(in.Exclusions) != 2 || in.Exclusions[0] != "leaves" || in.Exclusions[1] != "stems" {
		t.Fatalf("exclusions: %#v", in.Exclusions)
	}
	var res services.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ExecutionID != "exec-1" || res.EstimatedCostCents != 50 {
		t.Fatalf("result: %+v", res)
	}
}

func TestSubmitRejectsMalformedBodies(t *testing.T) {
	gens := &fakeGenerations{}
	r := generationRouter(gens)

	bodies := []string{
		`{"request_text":"x","requested_count":"10"}`,
		`{"request_text":"x","requested_count":2.5}`,
		`{"request_text":"x"}`,
		`{"request_text":"x","requested_count":3,"exclusions":7}`,
		`{"request_text":"x","requested_count":3,"dataset_id":"nope"}`,
		`{"request_text":"x","requested_count":500}`,
		`not json`,
	}
	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/api/generations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"code":"invalid_request"`) {
			t.Fatalf("%s: body %s", body, rec.Body.String())
		}
	}
	if len(gens.submitted) != 0 {
		t.Fatalf("malformed requests reached the service: %d", len(gens.submitted))
	}
}

func TestGetUnknownExecutionIs404(t *testing.T) {
	r := generationRouter(&fakeGenerations{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestEventsSendsSnapshotAndClosesWhenTerminal(t *testing.T) {
	gens := &fakeGenerations{status: map[string]*services.GenerationStatus{
		"exec-done": {
			ExecutionID: "exec-done",
			Step:        pipeline.StepCompleted,
			Progress:    100,
			Status:      pipeline.StatusCompleted,
			ImageCount:  4,
		},
	}}
	r := generationRouter(gens)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/exec-done/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event: GenerationCompleted\n") {
		t.Fatalf("missing completed event: %q", out)
	}
	if !strings.Contains(out, `"image_count":4`) {
		t.Fatalf("missing snapshot data: %q", out)
	}
}

func TestParseExclusions(t *testing.T) {
	got, err := parseExclusions(json.RawMessage(`[" a ", "", "b"]`))
	if err != nil || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("list: %#v %v", got, err)
	}
	got, err = parseExclusions(nil)
	if err != nil || got != nil {
		t.Fatalf("empty: %#v %v", got, err)
	}
	if _, err := parseExclusions(json.RawMessage(`{"a":1}`)); err == nil {
		t.Fatalf("object should be rejected")
	}
}

func TestBlobHandlerServesStoredObject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	blobs := mockai.NewBlobs("http://localhost/blobs")
	if err := blobs.Put(context.Background(), "images/u/1.png", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	r := gin.New()
	r.GET("/blobs/*key", NewBlobHandler(blobs).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blobs/images/u/1.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" {
		t.Fatalf("get: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type: %q", ct)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blobs/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}
}

func TestListPublicNeedsNoUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gens := &fakeGenerations{public: []services.ItemView{{ID: uuid.New(), Prompt: "shared", URL: "http://cdn.test/a.png", Public: true}}}
	h := NewGenerationHandler(logger.Nop(), gens, realtime.NewSSEHub(logger.Nop()))
	r := gin.New()
	r.GET("/api/images/public", h.ListPublic)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/public?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Images []services.ItemView `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Images) != 1 || body.Images[0].Prompt != "shared" || gens.publicLimit != 5 {
		t.Fatalf("unexpected listing %+v limit=%d", body.Images, gens.publicLimit)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/public?limit=5000", nil))
	if rec.Code != http.StatusOK || gens.publicLimit != 100 {
		t.Fatalf("limit should clamp to 100: code=%d limit=%d", rec.Code, gens.publicLimit)
	}
}
