package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// FetchResults pulls the finished outputs, stages each payload in the blob
// store and returns the items in request order. Positions without a payload
// are skipped.
func (p *Pipeline) FetchResults(ctx context.Context, jc JobContext) (JobContext, error) {
	const op = StepFetch

	desc, err := p.images.Describe(ctx, jc.ExternalJobHandle)
	if err != nil {
		return jc, newError(KindUpstream, op, err)
	}
	if outcome, _ := TranslateState(desc.State); outcome != OutcomeCompleted {
		return jc, errorf(KindUpstream, op, "external job not successful (state %s)", desc.State)
	}

	var results []BatchResult
	switch {
	case len(desc.Inline) > 0:
		results = desc.Inline
	case desc.ResultsFile != "":
		results, err = p.images.ReadResultsFile(ctx, desc.ResultsFile)
		if err != nil {
			return jc, newError(KindUpstream, op, fmt.Errorf("read results file: %w", err))
		}
	default:
		p.log.Warn("external job exposes no results", "execution_id", jc.ExecutionID, "handle", jc.ExternalJobHandle)
	}

	byIndex := make(map[int]BatchResult, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(jc.PromptVariations) {
			continue
		}
		if _, dup := byIndex[r.Index]; !dup {
			byIndex[r.Index] = r
		}
	}

	slots := make([]*GeneratedItem, len(jc.PromptVariations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.policy.UploadConcurrency))
	for i, prompt := range jc.PromptVariations {
		r, ok := byIndex[i]
		if !ok || len(r.Data) == 0 {
			p.log.Warn("no payload for position, skipping",
				"execution_id", jc.ExecutionID,
				"index", i,
				"provider_error", r.Err,
			)
			continue
		}
		g.Go(func() error {
			item, err := p.stage(gctx, jc, i, prompt, r)
			if err != nil {
				return err
			}
			slots[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return jc, newError(KindUpstream, op, err)
	}

	items := make([]GeneratedItem, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	p.log.Info("results staged",
		"execution_id", jc.ExecutionID,
		"delivered", len(items),
		"requested", len(jc.PromptVariations),
	)
	next := jc.WithItems(items)
	p.advance(ctx, next, StepFetch, progressFetch, "")
	return next, nil
}

func (p *Pipeline) stage(ctx context.Context, jc JobContext, index int, prompt string, r BatchResult) (*GeneratedItem, error) {
	mime := strings.TrimSpace(r.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(r.Data)
	}
	key := fmt.Sprintf("generated/%s/%s/%d.%s", jc.UserID, jc.JobID, index, extensionFor(mime))
	if err := p.blobs.Put(ctx, key, r.Data, mime); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := p.blobs.SignedURL(ctx, key, p.policy.SignedURLTTL)
	if err != nil {
		p.log.Warn("sign url failed", "execution_id", jc.ExecutionID, "key", key, "error", err)
	}
	item := &GeneratedItem{
		Index:      index,
		Prompt:     prompt,
		StorageKey: key,
		URL:        url,
		MimeType:   mime,
		Tags:       []string{},
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(r.Data)); err == nil {
		item.Width, item.Height = cfg.Width, cfg.Height
	}
	return item, nil
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
