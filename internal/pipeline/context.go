package pipeline

import "github.com/google/uuid"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Request is the caller's submission as handed to the first step.
type Request struct {
	ExecutionID    string     `json:"execution_id"`
	UserID         uuid.UUID  `json:"user_id"`
	DatasetID      *uuid.UUID `json:"dataset_id,omitempty"`
	RequestText    string     `json:"request_text"`
	Exclusions     []string   `json:"exclusions,omitempty"`
	RequestedCount int        `json:"requested_count"`
}

type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// BoundingBox coordinates are normalized to [0,1] relative to the image.
type BoundingBox struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type GeneratedItem struct {
	Index         int           `json:"index"`
	Prompt        string        `json:"prompt"`
	StorageKey    string        `json:"storage_key"`
	URL           string        `json:"url,omitempty"`
	MimeType      string        `json:"mime_type,omitempty"`
	Width         int           `json:"width,omitempty"`
	Height        int           `json:"height,omitempty"`
	Tags          []string      `json:"tags"`
	Labels        []Label       `json:"labels"`
	BoundingBoxes []BoundingBox `json:"bounding_boxes"`
	Error         string        `json:"error,omitempty"`
}

// JobContext is the value threaded through every step. Steps never modify
// the value they receive; they return a new one via the With helpers, which
// copy any slice they replace.
type JobContext struct {
	ExecutionID       string          `json:"execution_id"`
	JobID             uuid.UUID       `json:"job_id"`
	UserID            uuid.UUID       `json:"user_id"`
	DatasetID         uuid.UUID       `json:"dataset_id"`
	RequestText       string          `json:"request_text"`
	Exclusions        []string        `json:"exclusions,omitempty"`
	RequestedCount    int             `json:"requested_count"`
	UnitCostCents     int64           `json:"unit_cost_cents"`
	TotalCostCents    int64           `json:"total_cost_cents"`
	PromptVariations  []string        `json:"prompt_variations,omitempty"`
	ExternalJobHandle string          `json:"external_job_handle,omitempty"`
	RetryCount        int             `json:"retry_count"`
	GeneratedItems    []GeneratedItem `json:"generated_items,omitempty"`
	Status            Status          `json:"status"`
	Error             string          `json:"error,omitempty"`
}

func (c JobContext) WithPrompts(prompts []string) JobContext {
	c.PromptVariations = append([]string(nil), prompts...)
	return c
}

func (c JobContext) WithExternalJobHandle(handle string) JobContext {
	c.ExternalJobHandle = handle
	return c
}

// WithPollResult records one status check. RetryCount only ever grows.
func (c JobContext) WithPollResult(status Status, retryCount int, errMsg string) JobContext {
	c.Status = status
	if retryCount > c.RetryCount {
		c.RetryCount = retryCount
	}
	c.Error = errMsg
	return c
}

func (c JobContext) WithItems(items []GeneratedItem) JobContext {
	c.GeneratedItems = cloneItems(items)
	return c
}

func (c JobContext) WithStatus(status Status, errMsg string) JobContext {
	c.Status = status
	c.Error = errMsg
	return c
}

func cloneItems(items []GeneratedItem) []GeneratedItem {
	if items == nil {
		return nil
	}
	out := make([]GeneratedItem, len(items))
	for i, it := range items {
		it.Tags = append([]string(nil), it.Tags...)
		it.Labels = append([]Label(nil), it.Labels...)
		it.BoundingBoxes = append([]BoundingBox(nil), it.BoundingBoxes...)
		out[i] = it
	}
	return out
}
