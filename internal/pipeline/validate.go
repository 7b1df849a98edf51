package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/domain"
)

// MaxRequestTextLen bounds request_text in runes.
const MaxRequestTextLen = 2000

// CheckRequestText rejects a blank or over-long request text.
func CheckRequestText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("request_text is required")
	}
	if n := utf8.RuneCountInString(text); n > MaxRequestTextLen {
		return fmt.Errorf("request_text is %d characters, the limit is %d", n, MaxRequestTextLen)
	}
	return nil
}

// Validate checks the request, reserves credits and creates the job record.
// Re-invoking it for an execution that already reserved returns the
// existing job without debiting again.
func (p *Pipeline) Validate(ctx context.Context, req Request) (JobContext, error) {
	const op = StepValidate

	req.ExecutionID = strings.TrimSpace(req.ExecutionID)
	req.RequestText = strings.TrimSpace(req.RequestText)
	req.Exclusions = cleanExclusions(req.Exclusions)
	switch {
	case req.ExecutionID == "":
		return JobContext{}, errorf(KindInvalidArgument, op, "execution_id required")
	case req.UserID == uuid.Nil:
		return JobContext{}, errorf(KindInvalidArgument, op, "user_id required")
	}
	if err := CheckRequestText(req.RequestText); err != nil {
		return JobContext{}, newError(KindInvalidArgument, op, err)
	}
	if err := p.policy.CheckCount(req.RequestedCount); err != nil {
		return JobContext{}, newError(KindInvalidArgument, op, err)
	}

	existing, err := p.jobs.GetJobByExecutionID(ctx, req.ExecutionID)
	switch {
	case err == nil:
		if existing.UserID != req.UserID {
			return JobContext{}, errorf(KindInvalidArgument, op, "execution %s belongs to another user", req.ExecutionID)
		}
		p.log.Info("reservation already made, resuming", "execution_id", req.ExecutionID, "job_id", existing.ID)
		return p.contextFor(existing, req), nil
	case !errors.Is(err, domain.ErrNotFound):
		return JobContext{}, fromStore(op, err)
	}

	cost := p.policy.Cost(req.RequestedCount)
	balance, err := p.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return JobContext{}, fromStore(op, err)
	}
	if balance < cost {
		return JobContext{}, errorf(KindInsufficientBalance, op,
			"balance %s is below cost %s", FormatDollars(balance), FormatDollars(cost))
	}

	datasetID, err := p.datasets.ResolveDataset(ctx, req.UserID, req.DatasetID, datasetName(req.RequestText))
	if err != nil {
		return JobContext{}, fromStore(op, err)
	}

	rec := &domain.Batch{
		ID:             uuid.New(),
		ExecutionID:    req.ExecutionID,
		UserID:         req.UserID,
		DatasetID:      datasetID,
		RequestText:    req.RequestText,
		Exclusions:     strings.Join(req.Exclusions, ", "),
		RequestedCount: req.RequestedCount,
		CostCents:      cost,
		Status:         domain.BatchStatusProcessing,
		Step:           StepValidate,
		Progress:       progressValidate,
	}
	if err := p.jobs.Reserve(ctx, rec, DebitKey(req.ExecutionID)); err != nil {
		// A concurrent invocation may have won the race on the execution id.
		if again, gerr := p.jobs.GetJobByExecutionID(ctx, req.ExecutionID); gerr == nil && again.UserID == req.UserID {
			return p.contextFor(again, req), nil
		}
		return JobContext{}, fromStore(op, err)
	}

	jc := p.contextFor(rec, req)
	p.log.Info("credits reserved",
		"execution_id", jc.ExecutionID,
		"job_id", jc.JobID,
		"user_id", jc.UserID,
		"cost_cents", cost,
		"requested_count", jc.RequestedCount,
	)
	p.notify(ctx, ProgressEvent{
		ExecutionID: jc.ExecutionID,
		JobID:       jc.JobID,
		Step:        StepValidate,
		Progress:    progressValidate,
		Status:      StatusProcessing,
	})
	return jc, nil
}

func (p *Pipeline) contextFor(rec *domain.Batch, req Request) JobContext {
	return JobContext{
		ExecutionID:    rec.ExecutionID,
		JobID:          rec.ID,
		UserID:         rec.UserID,
		DatasetID:      rec.DatasetID,
		RequestText:    rec.RequestText,
		Exclusions:     append([]string(nil), req.Exclusions...),
		RequestedCount: rec.RequestedCount,
		UnitCostCents:  p.policy.UnitCostCents,
		TotalCostCents: rec.CostCents,
		RetryCount:     0,
		Status:         StatusProcessing,
	}
}

func cleanExclusions(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range in {
		e = strings.TrimSpace(e)
		k := strings.ToLower(e)
		if e == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func datasetName(text string) string {
	const max = 60
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:max])) + "..."
}
