package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/databanana-backend/internal/domain"
)

// Finalize is the commit point: items become durable and the job completes
// in one transaction, then the completion event goes out.
func (p *Pipeline) Finalize(ctx context.Context, jc JobContext) (JobContext, error) {
	const op = StepFinalize
	if len(jc.GeneratedItems) > jc.RequestedCount {
		return jc, errorf(KindUpstream, op, "%d items exceed requested count %d", len(jc.GeneratedItems), jc.RequestedCount)
	}

	images := make([]*domain.Image, 0, len(jc.GeneratedItems))
	for _, it := range jc.GeneratedItems {
		img, err := toImage(jc, it)
		if err != nil {
			return jc, newError(KindUpstream, op, err)
		}
		images = append(images, img)
	}

	done, err := p.jobs.Finalize(ctx, jc.JobID, StepCompleted, images)
	if err != nil {
		return jc, fromStore(op, err)
	}
	if !done {
		rec, gerr := p.jobs.GetJobByExecutionID(ctx, jc.ExecutionID)
		if gerr != nil || rec.Status != domain.BatchStatusCompleted {
			return jc, newError(KindUpstream, op, errors.New("job is no longer processing"))
		}
	}

	next := jc.WithStatus(StatusCompleted, "")
	p.log.Info("generation completed",
		"execution_id", jc.ExecutionID,
		"job_id", jc.JobID,
		"images", len(images),
	)
	p.notify(ctx, ProgressEvent{
		ExecutionID: jc.ExecutionID,
		JobID:       jc.JobID,
		Step:        StepCompleted,
		Progress:    progressDone,
		Status:      StatusCompleted,
		Message:     fmt.Sprintf("Successfully generated %d images!", len(images)),
		ImageCount:  len(images),
		Preview:     preview(next.GeneratedItems, p.policy.PreviewSize),
	})
	return next, nil
}

func toImage(jc JobContext, it GeneratedItem) (*domain.Image, error) {
	tags, err := jsonOf(nonNil(it.Tags))
	if err != nil {
		return nil, err
	}
	labels, err := jsonOf(nonNil(it.Labels))
	if err != nil {
		return nil, err
	}
	boxes, err := jsonOf(nonNil(it.BoundingBoxes))
	if err != nil {
		return nil, err
	}
	return &domain.Image{
		BatchID:       jc.JobID,
		DatasetID:     jc.DatasetID,
		UserID:        jc.UserID,
		Position:      it.Index,
		Prompt:        it.Prompt,
		StorageKey:    it.StorageKey,
		URL:           it.URL,
		MimeType:      it.MimeType,
		Width:         it.Width,
		Height:        it.Height,
		Tags:          tags,
		Labels:        labels,
		BoundingBoxes: boxes,
		LabelError:    it.Error,
	}, nil
}

func jsonOf(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func preview(items []GeneratedItem, n int) []PreviewItem {
	if n > len(items) {
		n = len(items)
	}
	out := make([]PreviewItem, 0, n)
	for _, it := range items[:n] {
		out = append(out, PreviewItem{Index: it.Index, Prompt: it.Prompt, URL: it.URL, Tags: nonNil(it.Tags)})
	}
	return out
}
