package pipeline

import (
	"context"
	"errors"
	"fmt"
)

const imagePromptTemplate = "Generate a high-quality image based on this prompt: %s"

// SubmitJob sends one generation request per prompt as a single batch.
// A job that already has a handle on its record is not resubmitted.
func (p *Pipeline) SubmitJob(ctx context.Context, jc JobContext) (JobContext, error) {
	const op = StepSubmit
	if len(jc.PromptVariations) == 0 {
		return jc, errorf(KindInvalidArgument, op, "no prompt variations to submit")
	}

	if rec, err := p.jobs.GetJobByExecutionID(ctx, jc.ExecutionID); err == nil && rec.ExternalJobHandle != "" {
		p.log.Info("external job already submitted", "execution_id", jc.ExecutionID, "handle", rec.ExternalJobHandle)
		next := jc.WithExternalJobHandle(rec.ExternalJobHandle)
		p.advance(ctx, next, StepSubmit, progressSubmit, "")
		return next, nil
	}

	requests := make([]string, len(jc.PromptVariations))
	for i, v := range jc.PromptVariations {
		requests[i] = fmt.Sprintf(imagePromptTemplate, v)
	}
	displayName := fmt.Sprintf("image-generation-%s-%s", jc.UserID, jc.JobID)
	handle, err := p.images.Submit(ctx, displayName, requests)
	if err != nil {
		return jc, newError(KindUpstream, op, err)
	}
	if handle == "" {
		return jc, newError(KindUpstream, op, errors.New("provider returned an empty job handle"))
	}

	if err := p.jobs.SetExternalHandle(ctx, jc.JobID, handle); err != nil {
		p.log.Warn("persist external handle failed", "execution_id", jc.ExecutionID, "handle", handle, "error", err)
	}
	p.log.Info("generation job submitted",
		"execution_id", jc.ExecutionID,
		"job_id", jc.JobID,
		"handle", handle,
		"requests", len(requests),
	)
	next := jc.WithExternalJobHandle(handle)
	p.advance(ctx, next, StepSubmit, progressSubmit, "")
	return next, nil
}
