package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/domain"
)

type CompensationInput struct {
	ExecutionID    string    `json:"execution_id"`
	JobID          uuid.UUID `json:"job_id"`
	UserID         uuid.UUID `json:"user_id"`
	TotalCostCents int64     `json:"total_cost_cents"`
	Error          string    `json:"error"`
}

type CompensationResult struct {
	Refunded      bool   `json:"refunded"`
	RefundedCents int64  `json:"refunded_cents"`
	RefundError   string `json:"refund_error,omitempty"`
	MarkedFailed  bool   `json:"marked_failed"`
	// AlreadyCompleted is set when the job committed before compensation
	// ran. Nothing is refunded or failed in that case.
	AlreadyCompleted bool `json:"already_completed,omitempty"`
}

// Compensate fails the job and refunds its reservation. The job record is
// authoritative: a completed job is left alone, and the refund is credited
// only once the record is failed without a recorded refund. The credit is
// keyed on the execution id, so a retried compensation moves no money twice.
// An error means the job may still be owed a refund and the call should be
// retried.
func (p *Pipeline) Compensate(ctx context.Context, in CompensationInput) (CompensationResult, error) {
	log := p.log.With("execution_id", in.ExecutionID, "job_id", in.JobID)
	var res CompensationResult

	rec, err := p.jobs.GetJobByExecutionID(ctx, in.ExecutionID)
	if errors.Is(err, domain.ErrNotFound) {
		// The reservation is atomic, so no record means nothing was debited.
		p.Reject(ctx, in.ExecutionID, in.Error)
		return res, nil
	}
	if err != nil {
		return res, newError(KindUpstream, StepFailed, fmt.Errorf("load job: %w", err))
	}

	if rec.Status == domain.BatchStatusProcessing {
		marked, err := p.jobs.FailJob(ctx, rec.ID, StepFailed, in.Error)
		if err != nil {
			return res, newError(KindUpstream, StepFailed, fmt.Errorf("mark job failed: %w", err))
		}
		res.MarkedFailed = marked
		if !marked {
			if rec, err = p.jobs.GetJobByExecutionID(ctx, in.ExecutionID); err != nil {
				return res, newError(KindUpstream, StepFailed, fmt.Errorf("reload job: %w", err))
			}
		}
	}
	if rec.Status == domain.BatchStatusCompleted {
		log.Warn("job already completed, nothing to compensate", "error", in.Error)
		res.AlreadyCompleted = true
		return res, nil
	}

	if rec.RefundedCents > 0 {
		res.Refunded = true
		res.RefundedCents = rec.RefundedCents
	} else if rec.CostCents > 0 {
		if in.TotalCostCents > 0 && in.TotalCostCents != rec.CostCents {
			log.Warn("reserved amount differs from job record", "input_cents", in.TotalCostCents, "record_cents", rec.CostCents)
		}
		applied, err := p.ledger.Credit(ctx, rec.UserID, rec.CostCents, RefundKey(in.ExecutionID))
		if err != nil {
			log.Error("refund failed", "user_id", rec.UserID, "amount_cents", rec.CostCents, "error", err)
			res.RefundError = err.Error()
			p.notifyFailure(ctx, in, rec.ID, res)
			return res, newError(KindUpstream, StepFailed, fmt.Errorf("refund: %w", err))
		}
		if !applied {
			log.Info("refund already applied", "amount_cents", rec.CostCents)
		}
		if _, err := p.jobs.RecordRefund(ctx, rec.ID, rec.CostCents); err != nil {
			return res, newError(KindUpstream, StepFailed, fmt.Errorf("record refund: %w", err))
		}
		res.Refunded = true
		res.RefundedCents = rec.CostCents
	}

	log.Warn("generation failed", "error", in.Error, "refunded_cents", res.RefundedCents)
	p.notifyFailure(ctx, in, rec.ID, res)
	return res, nil
}

func (p *Pipeline) notifyFailure(ctx context.Context, in CompensationInput, jobID uuid.UUID, res CompensationResult) {
	msg := fmt.Sprintf("Processing failed. %s has been refunded to your account.", FormatDollars(res.RefundedCents))
	if !res.Refunded {
		msg = "Processing failed. Your refund is pending, please contact support if it does not appear."
	}
	p.notify(ctx, ProgressEvent{
		ExecutionID:   in.ExecutionID,
		JobID:         jobID,
		Step:          StepFailed,
		Progress:      0,
		Status:        StatusFailed,
		Message:       msg,
		Error:         in.Error,
		RefundedCents: res.RefundedCents,
		Refunded:      Dollars(res.RefundedCents),
	})
}

// Reject reports a submission that failed before anything was reserved.
func (p *Pipeline) Reject(ctx context.Context, executionID, reason string) {
	p.log.Info("generation rejected", "execution_id", executionID, "reason", reason)
	p.notify(ctx, ProgressEvent{
		ExecutionID: executionID,
		Step:        StepFailed,
		Status:      StatusFailed,
		Message:     "Request rejected. No credits were charged.",
		Error:       reason,
	})
}
