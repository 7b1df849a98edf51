package pipeline

import (
	"context"
	"errors"
)

// Poll performs a single status check of the external job. Failures talking
// to the provider are absorbed: the job stays processing, RetryCount grows
// and the failure is recorded in Error. Only the caller's poll budget turns
// a job that never settles into a failure.
func (p *Pipeline) Poll(ctx context.Context, jc JobContext) (JobContext, error) {
	const op = StepPoll
	if jc.ExternalJobHandle == "" {
		return jc, errorf(KindInvalidArgument, op, "no external job handle")
	}
	progress := PollProgress(jc.RetryCount)

	desc, err := p.images.Describe(ctx, jc.ExternalJobHandle)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return jc, err
		}
		perr := newError(KindTransientPoll, op, err)
		p.log.Warn("status check failed, will poll again",
			"execution_id", jc.ExecutionID,
			"handle", jc.ExternalJobHandle,
			"retry_count", jc.RetryCount,
			"error", err,
		)
		next := jc.WithPollResult(StatusProcessing, jc.RetryCount+1, perr.Error())
		p.advance(ctx, next, StepPoll, progress, perr.Error())
		return next, nil
	}

	outcome, known := TranslateState(desc.State)
	if !known {
		p.log.Warn("unrecognized provider state, treating as processing",
			"execution_id", jc.ExecutionID,
			"state", desc.State,
		)
	}
	switch outcome {
	case OutcomeCompleted:
		return jc.WithPollResult(StatusCompleted, jc.RetryCount, ""), nil
	case OutcomeFailed:
		msg := "image generation job ended in state " + desc.State
		return jc.WithPollResult(StatusFailed, jc.RetryCount, msg), nil
	default:
		next := jc.WithPollResult(StatusProcessing, jc.RetryCount+1, "")
		p.advance(ctx, next, StepPoll, progress, "")
		return next, nil
	}
}
