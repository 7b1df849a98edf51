package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

// Deps are the collaborators a Pipeline is built from. The caller owns
// their lifecycle.
type Deps struct {
	Log      *logger.Logger
	Ledger   Ledger
	Jobs     JobStore
	Datasets DatasetStore
	Text     TextGenerator
	Images   ImageBatchClient
	Blobs    BlobStore
	Labeler  Labeler
	Notifier Notifier
	Policy   Policy
	Now      func() time.Time
}

// Pipeline implements the generation steps and the compensation handler.
// Each method is a self-contained unit an orchestrator can invoke (and
// re-invoke) independently.
type Pipeline struct {
	log      *logger.Logger
	ledger   Ledger
	jobs     JobStore
	datasets DatasetStore
	text     TextGenerator
	images   ImageBatchClient
	blobs    BlobStore
	labeler  Labeler
	notifier Notifier
	policy   Policy
	now      func() time.Time
}

func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Log == nil:
		return nil, errors.New("pipeline: missing logger")
	case d.Ledger == nil:
		return nil, errors.New("pipeline: missing ledger")
	case d.Jobs == nil:
		return nil, errors.New("pipeline: missing job store")
	case d.Datasets == nil:
		return nil, errors.New("pipeline: missing dataset store")
	case d.Text == nil:
		return nil, errors.New("pipeline: missing text generator")
	case d.Images == nil:
		return nil, errors.New("pipeline: missing image batch client")
	case d.Blobs == nil:
		return nil, errors.New("pipeline: missing blob store")
	case d.Labeler == nil:
		return nil, errors.New("pipeline: missing labeler")
	}
	if err := d.Policy.Validate(); err != nil {
		return nil, err
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		log:      d.Log.Named("pipeline"),
		ledger:   d.Ledger,
		jobs:     d.Jobs,
		datasets: d.Datasets,
		text:     d.Text,
		images:   d.Images,
		blobs:    d.Blobs,
		labeler:  d.Labeler,
		notifier: d.Notifier,
		policy:   d.Policy,
		now:      now,
	}, nil
}

func (p *Pipeline) Policy() Policy { return p.policy }

// notify pushes ev and logs delivery failures. It never fails the caller.
func (p *Pipeline) notify(ctx context.Context, ev ProgressEvent) {
	if p.notifier == nil {
		return
	}
	if ev.Message == "" {
		ev.Message = StepMessage(ev.Step)
	}
	if err := p.notifier.Push(ctx, ev); err != nil {
		p.log.Warn("progress notification failed",
			"execution_id", ev.ExecutionID,
			"step", ev.Step,
			"status", ev.Status,
			"error", err,
		)
	}
}

// advance records progress on the job and notifies subscribers. The record
// write is best-effort: a lost progress update must not fail the step.
func (p *Pipeline) advance(ctx context.Context, jc JobContext, step string, progress int, errMsg string) {
	if jc.JobID != uuid.Nil {
		if err := p.jobs.UpdateProgress(ctx, jc.JobID, step, progress, errMsg); err != nil {
			p.log.Warn("job progress update failed",
				"execution_id", jc.ExecutionID,
				"job_id", jc.JobID,
				"step", step,
				"error", err,
			)
		}
	}
	p.notify(ctx, ProgressEvent{
		ExecutionID: jc.ExecutionID,
		JobID:       jc.JobID,
		Step:        step,
		Progress:    progress,
		Status:      StatusProcessing,
	})
}

func DebitKey(executionID string) string  { return "debit:" + executionID }
func RefundKey(executionID string) string { return "refund:" + executionID }
