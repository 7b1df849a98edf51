package imagegen

import (
	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/pipeline"
)

const (
	WorkflowName = "image_generation"

	ActivityValidate   = "image_generation_validate"
	ActivityPrompts    = "image_generation_prompts"
	ActivitySubmit     = "image_generation_submit"
	ActivityPoll       = "image_generation_poll"
	ActivityFetch      = "image_generation_fetch"
	ActivityLabel      = "image_generation_label"
	ActivityFinalize   = "image_generation_finalize"
	ActivityCompensate = "image_generation_compensate"
	ActivityReject     = "image_generation_reject"
)

// Input is fixed at start. The policy travels with it so a replay sees the
// same poll budget the run started with.
type Input struct {
	Request pipeline.Request `json:"request"`
	Policy  pipeline.Policy  `json:"policy"`
}

type Result struct {
	ExecutionID   string          `json:"execution_id"`
	JobID         uuid.UUID       `json:"job_id,omitempty"`
	Status        pipeline.Status `json:"status"`
	ImageCount    int             `json:"image_count"`
	Polls         int             `json:"polls"`
	RefundedCents int64           `json:"refunded_cents,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	Error         string          `json:"error,omitempty"`
}
