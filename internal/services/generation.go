package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/apierr"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/temporalx/imagegen"
)

// WorkflowClient is the part of the Temporal client the API process uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

type SubmitInput struct {
	UserID         uuid.UUID
	RequestText    string
	Exclusions     []string
	RequestedCount int
	DatasetID      *uuid.UUID
	IdempotencyKey string
}

type SubmitResult struct {
	ExecutionID        string          `json:"execution_id"`
	Status             pipeline.Status `json:"status"`
	EstimatedCost      float64         `json:"estimated_cost"`
	EstimatedCostCents int64           `json:"estimated_cost_cents"`
}

type ItemView struct {
	ID            uuid.UUID              `json:"id"`
	Index         int                    `json:"index"`
	Prompt        string                 `json:"prompt"`
	URL           string                 `json:"url"`
	MimeType      string                 `json:"mime_type"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Tags          []string               `json:"tags"`
	Labels        []pipeline.Label       `json:"labels"`
	BoundingBoxes []pipeline.BoundingBox `json:"bounding_boxes"`
	LabelError    string                 `json:"label_error,omitempty"`
	Selected      bool                   `json:"selected"`
	Rejected      bool                   `json:"rejected"`
	Public        bool                   `json:"public"`
}

type GenerationStatus struct {
	ExecutionID    string          `json:"execution_id"`
	JobID          *uuid.UUID      `json:"job_id,omitempty"`
	DatasetID      *uuid.UUID      `json:"dataset_id,omitempty"`
	RequestText    string          `json:"request_text,omitempty"`
	RequestedCount int             `json:"requested_count,omitempty"`
	Step           string          `json:"step"`
	Progress       int             `json:"progress"`
	Status         pipeline.Status `json:"status"`
	Message        string          `json:"message"`
	Error          string          `json:"error,omitempty"`
	Cost           float64         `json:"cost"`
	CostCents      int64           `json:"cost_cents"`
	Refunded       float64         `json:"refunded"`
	RefundedCents  int64           `json:"refunded_cents"`
	ImageCount     int             `json:"image_count"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Items          []ItemView      `json:"items,omitempty"`
}

// Terminal reports whether no further progress events will follow.
func (s *GenerationStatus) Terminal() bool {
	return s.Status == pipeline.StatusCompleted || s.Status == pipeline.StatusFailed
}

type GenerationService interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	Status(ctx context.Context, userID uuid.UUID, executionID string, withItems bool) (*GenerationStatus, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*GenerationStatus, error)
	// ListPublic returns the shared gallery with freshly signed URLs.
	ListPublic(ctx context.Context, limit int) ([]ItemView, error)
}

type generationService struct {
	log       *logger.Logger
	repos     repos.Repos
	blobs     pipeline.BlobStore
	temporal  WorkflowClient
	taskQueue string
	policy    pipeline.Policy
	now       func() time.Time
}

func NewGenerationService(
	baseLog *logger.Logger,
	r repos.Repos,
	blobs pipeline.BlobStore,
	tc WorkflowClient,
	taskQueue string,
	policy pipeline.Policy,
) GenerationService {
	return &generationService{
		log:       baseLog.With("service", "GenerationService"),
		repos:     r,
		blobs:     blobs,
		temporal:  tc,
		taskQueue: strings.TrimSpace(taskQueue),
		policy:    policy,
		now:       time.Now,
	}
}

// Submit checks the request and starts the workflow. It moves no money: the
// reservation happens in the workflow's first step. Resubmitting with the
// same idempotency key returns the execution already started.
func (s *generationService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	text := strings.TrimSpace(in.RequestText)
	if err := pipeline.CheckRequestText(text); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", err)
	}
	if err := s.policy.CheckCount(in.RequestedCount); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_request", err)
	}
	cost := s.policy.Cost(in.RequestedCount)

	dbc := dbctx.New(ctx)
	balance, err := s.repos.Ledger.Balance(dbc, in.UserID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if in.DatasetID != nil {
		if _, err := s.repos.Datasets.GetForUser(dbc, in.UserID, *in.DatasetID); err != nil {
			return nil, mapDomainError(err)
		}
	}
	if balance < cost {
		return nil, apierr.New(http.StatusPaymentRequired, "insufficient_balance",
			fmt.Errorf("insufficient credits: need %s but you have %s", pipeline.FormatDollars(cost), pipeline.FormatDollars(balance)))
	}
	if s.temporal == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "orchestrator_unavailable", fmt.Errorf("generation workflows are not configured"))
	}

	executionID := pipeline.NewExecutionID(in.UserID, s.now(), in.IdempotencyKey)
	input := imagegen.Input{
		Request: pipeline.Request{
			ExecutionID:    executionID,
			UserID:         in.UserID,
			DatasetID:      in.DatasetID,
			RequestText:    text,
			Exclusions:     in.Exclusions,
			RequestedCount: in.RequestedCount,
		},
		Policy: s.policy,
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    executionID,
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	if _, err := s.temporal.ExecuteWorkflow(ctx, opts, imagegen.WorkflowName, input); err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &started) {
			s.log.Error("workflow start failed", "execution_id", executionID, "error", err)
			return nil, apierr.New(http.StatusServiceUnavailable, "orchestrator_unavailable", fmt.Errorf("could not start generation: %w", err))
		}
		s.log.Info("workflow already started", "execution_id", executionID)
	} else {
		s.log.Info("generation submitted",
			"execution_id", executionID,
			"user_id", in.UserID,
			"requested_count", in.RequestedCount,
			"cost_cents", cost,
		)
	}

	return &SubmitResult{
		ExecutionID:        executionID,
		Status:             pipeline.StatusProcessing,
		EstimatedCost:      pipeline.Dollars(cost),
		EstimatedCostCents: cost,
	}, nil
}

func (s *generationService) Status(ctx context.Context, userID uuid.UUID, executionID string, withItems bool) (*GenerationStatus, error) {
	owner, ok := pipeline.ExecutionOwner(executionID)
	if !ok || owner != userID {
		return nil, apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("execution %s not found", executionID))
	}
	dbc := dbctx.New(ctx)
	b, err := s.repos.Batches.GetByExecutionID(dbc, executionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.pendingStatus(ctx, executionID)
		}
		return nil, err
	}
	st := statusFromBatch(b)
	if withItems && b.Status == domain.BatchStatusCompleted {
		imgs, err := s.repos.Images.ListByBatch(dbc, b.ID)
		if err != nil {
			return nil, err
		}
		st.Items = s.itemViews(ctx, imgs)
	}
	return st, nil
}

// pendingStatus covers executions whose workflow has not reserved yet.
func (s *generationService) pendingStatus(ctx context.Context, executionID string) (*GenerationStatus, error) {
	notFound := apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("execution %s not found", executionID))
	if s.temporal == nil {
		return nil, notFound
	}
	resp, err := s.temporal.DescribeWorkflowExecution(ctx, executionID, "")
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return nil, notFound
		}
		return nil, err
	}
	st := &GenerationStatus{
		ExecutionID: executionID,
		Step:        pipeline.StepQueued,
		Status:      pipeline.StatusProcessing,
		Message:     pipeline.StepMessage(pipeline.StepQueued),
	}
	if resp.GetWorkflowExecutionInfo().GetStatus() != enums.WORKFLOW_EXECUTION_STATUS_RUNNING {
		st.Step = pipeline.StepFailed
		st.Status = pipeline.StatusFailed
		st.Message = "Request rejected. No credits were charged."
		st.Error = "request was rejected before credits were reserved"
	}
	return st, nil
}

func (s *generationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]*GenerationStatus, error) {
	batches, err := s.repos.Batches.ListByUser(dbctx.New(ctx), userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*GenerationStatus, 0, len(batches))
	for _, b := range batches {
		out = append(out, statusFromBatch(b))
	}
	return out, nil
}

func (s *generationService) ListPublic(ctx context.Context, limit int) ([]ItemView, error) {
	imgs, err := s.repos.Images.ListPublic(dbctx.New(ctx), limit)
	if err != nil {
		return nil, err
	}
	return s.itemViews(ctx, imgs), nil
}

func statusFromBatch(b *domain.Batch) *GenerationStatus {
	jobID, datasetID, created := b.ID, b.DatasetID, b.CreatedAt
	st := &GenerationStatus{
		ExecutionID:    b.ExecutionID,
		JobID:          &jobID,
		DatasetID:      &datasetID,
		RequestText:    b.RequestText,
		RequestedCount: b.RequestedCount,
		Step:           b.Step,
		Progress:       b.Progress,
		Status:         pipeline.Status(b.Status),
		Message:        pipeline.StepMessage(b.Step),
		Error:          b.Error,
		Cost:           pipeline.Dollars(b.CostCents),
		CostCents:      b.CostCents,
		Refunded:       pipeline.Dollars(b.RefundedCents),
		RefundedCents:  b.RefundedCents,
		ImageCount:     b.ImageCount,
		CreatedAt:      &created,
		CompletedAt:    b.CompletedAt,
	}
	switch b.Status {
	case domain.BatchStatusCompleted:
		st.Message = fmt.Sprintf("Successfully generated %d images!", b.ImageCount)
	case domain.BatchStatusFailed:
		if b.RefundedCents == 0 && b.CostCents > 0 {
			st.Message = "Processing failed. Your refund is pending, please contact support if it does not appear."
		} else {
			st.Message = fmt.Sprintf("Processing failed. %s has been refunded to your account.", pipeline.FormatDollars(b.RefundedCents))
		}
	}
	return st
}

// itemViews re-signs every stored object; the URL saved at staging time is
// only a fallback since it expires.
func (s *generationService) itemViews(ctx context.Context, imgs []*domain.Image) []ItemView {
	out := make([]ItemView, 0, len(imgs))
	for _, img := range imgs {
		v := ItemView{
			ID:         img.ID,
			Index:      img.Position,
			Prompt:     img.Prompt,
			URL:        img.URL,
			MimeType:   img.MimeType,
			Width:      img.Width,
			Height:     img.Height,
			LabelError: img.LabelError,
			Selected:   img.Selected,
			Rejected:   img.Rejected,
			Public:     img.Public,
		}
		decodeJSON(img.Tags, &v.Tags)
		decodeJSON(img.Labels, &v.Labels)
		decodeJSON(img.BoundingBoxes, &v.BoundingBoxes)
		if s.blobs != nil && img.StorageKey != "" {
			if u, err := s.blobs.SignedURL(ctx, img.StorageKey, s.policy.SignedURLTTL); err == nil {
				v.URL = u
			} else {
				s.log.Warn("re-sign failed", "image_id", img.ID, "error", err)
			}
		}
		out = append(out, v)
	}
	return out
}

func decodeJSON(raw []byte, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// mapDomainError turns repository sentinels into API errors.
func mapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, domain.ErrInsufficientBalance):
		return apierr.New(http.StatusPaymentRequired, "insufficient_balance", err)
	case errors.Is(err, domain.ErrInvalidArgument):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, domain.ErrForbidden):
		return apierr.New(http.StatusForbidden, "forbidden", err)
	}
	return err
}
