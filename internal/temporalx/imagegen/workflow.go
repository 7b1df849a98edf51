package imagegen

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/databanana-backend/internal/pipeline"
)

// Workflow runs one generation: reserve, prompts, submit, poll until the
// external job settles, stage, label, persist. Any fatal error after the
// reservation is routed to compensation exactly once.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	log := workflow.GetLogger(ctx)
	pol := in.Policy
	if pol.Validate() != nil {
		pol = pipeline.DefaultPolicy()
	}

	res := Result{ExecutionID: in.Request.ExecutionID, Status: pipeline.StatusProcessing}
	jc := pipeline.JobContext{ExecutionID: in.Request.ExecutionID, UserID: in.Request.UserID}

	compensated := false
	compensate := func(cause error) (Result, error) {
		res.Status = pipeline.StatusFailed
		res.ErrorKind, res.Error = describe(cause)
		if compensated {
			return res, nil
		}
		compensated = true
		log.Warn("generation failed, compensating", "execution_id", res.ExecutionID, "kind", res.ErrorKind, "error", res.Error)

		compCtx := workflow.WithActivityOptions(ctx, compensationOptions())
		var cr pipeline.CompensationResult
		err := workflow.ExecuteActivity(compCtx, ActivityCompensate, pipeline.CompensationInput{
			ExecutionID:    jc.ExecutionID,
			JobID:          jc.JobID,
			UserID:         jc.UserID,
			TotalCostCents: jc.TotalCostCents,
			Error:          res.Error,
		}).Get(ctx, &cr)
		if err != nil {
			// The job is failed but its refund is still owed.
			log.Error("compensation exhausted its retries, refund pending", "execution_id", res.ExecutionID, "error", err)
			return res, nil
		}
		res.RefundedCents = cr.RefundedCents
		return res, nil
	}

	valCtx := workflow.WithActivityOptions(ctx, validateOptions(pol))
	var reservedJC pipeline.JobContext
	if err := workflow.ExecuteActivity(valCtx, ActivityValidate, in.Request).Get(ctx, &reservedJC); err != nil {
		kind, msg := describe(err)
		if !pipeline.IsClientKind(pipeline.Kind(kind)) {
			// The reservation may have committed before the step failed.
			return compensate(err)
		}
		res.Status = pipeline.StatusFailed
		res.ErrorKind, res.Error = kind, msg
		log.Warn("reservation failed", "execution_id", res.ExecutionID, "kind", res.ErrorKind, "error", res.Error)
		notifyCtx := workflow.WithActivityOptions(ctx, compensationOptions())
		if nerr := workflow.ExecuteActivity(notifyCtx, ActivityReject, res.ExecutionID, res.Error).Get(ctx, nil); nerr != nil {
			log.Warn("reject notification failed", "execution_id", res.ExecutionID, "error", nerr)
		}
		return res, nil
	}
	jc = reservedJC
	res.JobID = jc.JobID

	stepCtx := workflow.WithActivityOptions(ctx, stepOptions(pol))
	run := func(name string) error {
		var out pipeline.JobContext
		if err := workflow.ExecuteActivity(stepCtx, name, jc).Get(ctx, &out); err != nil {
			return err
		}
		jc = out
		return nil
	}

	if err := run(ActivityPrompts); err != nil {
		return compensate(err)
	}
	if err := run(ActivitySubmit); err != nil {
		return compensate(err)
	}

	pollCtx := workflow.WithActivityOptions(ctx, pollOptions())
	for {
		var out pipeline.JobContext
		if err := workflow.ExecuteActivity(pollCtx, ActivityPoll, jc).Get(ctx, &out); err != nil {
			return compensate(err)
		}
		jc = out
		res.Polls++

		switch jc.Status {
		case pipeline.StatusCompleted:
		case pipeline.StatusFailed:
			return compensate(&pipeline.Error{Kind: pipeline.KindUpstream, Op: pipeline.StepPoll, Err: errors.New(jc.Error)})
		default:
			if res.Polls >= pol.MaxPolls {
				return compensate(&pipeline.Error{
					Kind: pipeline.KindRetryBudgetExhausted,
					Op:   pipeline.StepPoll,
					Err:  fmt.Errorf("external job still running after %d status checks", res.Polls),
				})
			}
			if err := workflow.Sleep(ctx, pol.PollDelay(res.Polls-1)); err != nil {
				return compensate(err)
			}
			continue
		}
		break
	}

	for _, name := range []string{ActivityFetch, ActivityLabel, ActivityFinalize} {
		if err := run(name); err != nil {
			return compensate(err)
		}
	}

	res.Status = pipeline.StatusCompleted
	res.ImageCount = len(jc.GeneratedItems)
	return res, nil
}

func stepOptions(pol pipeline.Policy) workflow.ActivityOptions {
	attempts := pol.StepAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := pol.StepTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    int32(attempts),
		},
	}
}

// validateOptions retries the reservation step at least three times. A
// retry resumes an existing reservation instead of debiting again.
func validateOptions(pol pipeline.Policy) workflow.ActivityOptions {
	opts := stepOptions(pol)
	if opts.RetryPolicy.MaximumAttempts < 3 {
		opts.RetryPolicy.MaximumAttempts = 3
	}
	opts.RetryPolicy.NonRetryableErrorTypes = []string{
		string(pipeline.KindInvalidArgument),
		string(pipeline.KindInsufficientBalance),
		string(pipeline.KindNotFound),
	}
	return opts
}

func pollOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
}

func compensationOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}

// describe extracts the error kind and a caller-readable message.
func describe(err error) (string, string) {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return string(pe.Kind), pe.Error()
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		msg := appErr.Message()
		if msg == "" {
			msg = appErr.Error()
		}
		return appErr.Type(), msg
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return string(pipeline.KindUpstream), "step timed out: " + timeoutErr.Error()
	}
	return string(pipeline.KindUpstream), err.Error()
}
