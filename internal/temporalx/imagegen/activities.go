package imagegen

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

// Activities adapts pipeline steps to Temporal activities. Caller-caused
// failures become non-retryable application errors typed by their kind.
type Activities struct {
	Log      *logger.Logger
	Pipeline *pipeline.Pipeline
}

func (a *Activities) Validate(ctx context.Context, req pipeline.Request) (pipeline.JobContext, error) {
	jc, err := a.Pipeline.Validate(ctx, req)
	return jc, toApplicationError(err)
}

func (a *Activities) GeneratePrompts(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	out, err := a.Pipeline.GeneratePrompts(ctx, jc)
	return out, toApplicationError(err)
}

func (a *Activities) SubmitJob(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	out, err := a.Pipeline.SubmitJob(ctx, jc)
	return out, toApplicationError(err)
}

func (a *Activities) Poll(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	out, err := a.Pipeline.Poll(ctx, jc)
	return out, toApplicationError(err)
}

func (a *Activities) FetchResults(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	defer startHeartbeat(ctx)()
	out, err := a.Pipeline.FetchResults(ctx, jc)
	return out, toApplicationError(err)
}

func (a *Activities) Label(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	defer startHeartbeat(ctx)()
	out, err := a.Pipeline.Label(ctx, jc)
	return out, toApplicationError(err)
}

func (a *Activities) Finalize(ctx context.Context, jc pipeline.JobContext) (pipeline.JobContext, error) {
	out, err := a.Pipeline.Finalize(ctx, jc)
	return out, toApplicationError(err)
}

// Compensate fails with a retryable error while the refund is still owed.
func (a *Activities) Compensate(ctx context.Context, in pipeline.CompensationInput) (pipeline.CompensationResult, error) {
	res, err := a.Pipeline.Compensate(ctx, in)
	return res, toApplicationError(err)
}

func (a *Activities) Reject(ctx context.Context, executionID, reason string) error {
	a.Pipeline.Reject(ctx, executionID, reason)
	return nil
}

func toApplicationError(err error) error {
	if err == nil {
		return nil
	}
	kind := pipeline.KindOf(err)
	if pipeline.IsClientError(err) || errors.Is(err, context.Canceled) {
		return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), nil)
	}
	return temporal.NewApplicationError(err.Error(), string(kind))
}

// startHeartbeat keeps long staging steps alive while they run.
func startHeartbeat(ctx context.Context) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	info := activity.GetInfo(ctx)
	interval := info.HeartbeatTimeout / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return cancel
}
