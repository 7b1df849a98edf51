package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/domain"
)

// Ledger is the credit balance store. Credit is idempotent on key.
type Ledger interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, cents int64, key string) (bool, error)
}

// JobStore owns the durable job record.
type JobStore interface {
	// Reserve debits rec.CostCents under debitKey and creates rec in one
	// transaction. Neither happens if either fails.
	Reserve(ctx context.Context, rec *domain.Batch, debitKey string) error
	GetJobByExecutionID(ctx context.Context, executionID string) (*domain.Batch, error)
	UpdateProgress(ctx context.Context, jobID uuid.UUID, step string, progress int, errMsg string) error
	SetExternalHandle(ctx context.Context, jobID uuid.UUID, handle string) error
	// Finalize persists images and marks the job completed in one transaction.
	// It reports false when the job was no longer processing.
	Finalize(ctx context.Context, jobID uuid.UUID, step string, images []*domain.Image) (bool, error)
	// FailJob reports false when the job was no longer processing.
	FailJob(ctx context.Context, jobID uuid.UUID, step, errMsg string) (bool, error)
	// RecordRefund stores the refunded amount on a failed job that has none
	// recorded yet.
	RecordRefund(ctx context.Context, jobID uuid.UUID, cents int64) (bool, error)
}

// DatasetStore resolves the dataset a job's items are filed under. A nil
// datasetID creates a new dataset called name.
type DatasetStore interface {
	ResolveDataset(ctx context.Context, userID uuid.UUID, datasetID *uuid.UUID, name string) (uuid.UUID, error)
}

type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// BatchResult is one delivered output of an image batch. Index is the
// position of the originating request.
type BatchResult struct {
	Index    int
	Data     []byte
	MimeType string
	Err      string
}

// BatchDescriptor is a snapshot of an external job. Results are exposed
// either inline or through ResultsFile, never both.
type BatchDescriptor struct {
	Handle      string
	State       string
	Inline      []BatchResult
	ResultsFile string
}

type ImageBatchClient interface {
	Submit(ctx context.Context, displayName string, prompts []string) (string, error)
	Describe(ctx context.Context, handle string) (BatchDescriptor, error)
	ReadResultsFile(ctx context.Context, file string) ([]BatchResult, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type LabelResult struct {
	Labels []Label
	Boxes  []BoundingBox
}

type Labeler interface {
	DetectLabels(ctx context.Context, data []byte, mimeType string) (LabelResult, error)
}

// PreviewItem is the bounded slice of results sent with the completion event.
type PreviewItem struct {
	Index  int      `json:"index"`
	Prompt string   `json:"prompt"`
	URL    string   `json:"url"`
	Tags   []string `json:"tags"`
}

type ProgressEvent struct {
	ExecutionID   string        `json:"execution_id"`
	JobID         uuid.UUID     `json:"job_id,omitempty"`
	Step          string        `json:"step"`
	Progress      int           `json:"progress"`
	Status        Status        `json:"status"`
	Message       string        `json:"message"`
	Error         string        `json:"error,omitempty"`
	ImageCount    int           `json:"image_count,omitempty"`
	RefundedCents int64         `json:"refunded_cents,omitempty"`
	Refunded      float64       `json:"refunded,omitempty"`
	Preview       []PreviewItem `json:"preview,omitempty"`
}

// Notifier delivers progress events to subscribers of the execution id.
// Delivery is best-effort.
type Notifier interface {
	Push(ctx context.Context, ev ProgressEvent) error
}
