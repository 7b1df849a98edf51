package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Label runs label detection on every item. A failed item keeps empty labels
// and carries the error; the step fails only if every item failed.
func (p *Pipeline) Label(ctx context.Context, jc JobContext) (JobContext, error) {
	const op = StepLabel
	items := cloneItems(jc.GeneratedItems)

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.policy.LabelConcurrency))
	for i := range items {
		g.Go(func() error {
			if err := p.labelOne(gctx, &items[i]); err != nil {
				failed.Add(1)
				p.log.Warn("labeling failed for item",
					"execution_id", jc.ExecutionID,
					"index", items[i].Index,
					"error", err,
				)
				items[i].Labels = []Label{}
				items[i].BoundingBoxes = []BoundingBox{}
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := int(failed.Load()); n > 0 && n == len(items) {
		return jc, newError(KindUpstream, op, errors.New("label detection failed for every item"))
	}
	next := jc.WithItems(items)
	p.advance(ctx, next, StepLabel, progressLabel, "")
	return next, nil
}

func (p *Pipeline) labelOne(ctx context.Context, it *GeneratedItem) error {
	data, err := p.blobs.Get(ctx, it.StorageKey)
	if err != nil {
		return err
	}
	res, err := p.labeler.DetectLabels(ctx, data, it.MimeType)
	if err != nil {
		return err
	}
	labels := append([]Label(nil), res.Labels...)
	sort.SliceStable(labels, func(a, b int) bool { return labels[a].Confidence > labels[b].Confidence })
	it.Labels = labels
	it.BoundingBoxes = append([]BoundingBox{}, res.Boxes...)
	it.Tags = MergeTags(it.Tags, labels, p.policy.TopTags)
	return nil
}

// MergeTags appends the top n label names, lower-cased, to tags without
// introducing duplicates.
func MergeTags(tags []string, labels []Label, n int) []string {
	out := make([]string, 0, len(tags)+n)
	seen := make(map[string]bool, len(tags)+n)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for i := 0; i < len(labels) && i < n; i++ {
		t := strings.ToLower(strings.TrimSpace(labels[i].Name))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
