package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/http/response"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/services"
)

const defaultListLimit = 50

type GenerationHandler struct {
	log         *logger.Logger
	generations services.GenerationService
	hub         *realtime.SSEHub
}

func NewGenerationHandler(log *logger.Logger, generations services.GenerationService, hub *realtime.SSEHub) *GenerationHandler {
	return &GenerationHandler{
		log:         log.With("handler", "GenerationHandler"),
		generations: generations,
		hub:         hub,
	}
}

type submitRequest struct {
	RequestText    string          `json:"request_text"`
	Exclusions     json.RawMessage `json:"exclusions"`
	RequestedCount json.RawMessage `json:"requested_count"`
	DatasetID      string          `json:"dataset_id"`
}

// POST /api/generations
// body: { "request_text": "...", "exclusions": ["..."] | "a, b", "requested_count": 10, "dataset_id": "..." }
func (h *GenerationHandler) Submit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	count, err := pipeline.ParseRequestedCount(req.RequestedCount)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	exclusions, err := parseExclusions(req.Exclusions)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in := services.SubmitInput{
		UserID:         userID,
		RequestText:    req.RequestText,
		Exclusions:     exclusions,
		RequestedCount: count,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}
	if s := strings.TrimSpace(req.DatasetID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("dataset_id must be a uuid"))
			return
		}
		in.DatasetID = &id
	}

	res, err := h.generations.Submit(c.Request.Context(), in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// GET /api/generations
func (h *GenerationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	limit := defaultListLimit
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	out, err := h.generations.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"generations": out})
}

// GET /api/images/public
func (h *GenerationHandler) ListPublic(c *gin.Context) {
	limit := 100
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	out, err := h.generations.ListPublic(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"images": out})
}

// GET /api/generations/:id?items=true
func (h *GenerationHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	withItems, _ := strconv.ParseBool(c.DefaultQuery("items", "true"))
	st, err := h.generations.Status(c.Request.Context(), userID, c.Param("id"), withItems)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

// GET /api/generations/:id/events
// Streams progress for one execution. The current state is sent first so a
// client that connects late still sees where the run is.
func (h *GenerationHandler) Events(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	executionID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.generations.Status(ctx, userID, executionID, false); err != nil {
		response.RespondErr(c, err)
		return
	}

	// Subscribe before taking the snapshot so nothing published in between
	// is lost.
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, executionID)
	defer h.hub.CloseClient(client)

	st, err := h.generations.Status(ctx, userID, executionID, false)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.log.Debug("SSE stream open", "execution_id", executionID, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client, snapshotMessage(st))
}

func snapshotMessage(st *services.GenerationStatus) realtime.SSEMessage {
	ev := pipeline.ProgressEvent{
		ExecutionID:   st.ExecutionID,
		Step:          st.Step,
		Progress:      st.Progress,
		Status:        st.Status,
		Message:       st.Message,
		Error:         st.Error,
		ImageCount:    st.ImageCount,
		RefundedCents: st.RefundedCents,
		Refunded:      st.Refunded,
	}
	if st.JobID != nil {
		ev.JobID = *st.JobID
	}
	return services.ProgressMessage(ev)
}

// parseExclusions accepts either a JSON array of strings or one
// comma-separated string.
func parseExclusions(raw json.RawMessage) ([]string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	var list []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.New("exclusions must be a list of strings")
		}
	} else {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, errors.New("exclusions must be a string or a list of strings")
		}
		list = strings.Split(one, ",")
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out, nil
}
