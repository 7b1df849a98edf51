package pipeline

import (
	"context"
	"fmt"
	"strings"
)

const promptSystem = "You write short, vivid scene descriptions used as prompts for an image generator. " +
	"Each description must be self-contained, concrete and visually distinct from the others."

// GeneratePrompts asks the text model for RequestedCount variations. It
// never fails on upstream trouble: missing variations are synthesized.
func (p *Pipeline) GeneratePrompts(ctx context.Context, jc JobContext) (JobContext, error) {
	raw, err := p.text.GenerateText(ctx, promptSystem, p.promptRequest(jc))
	if err != nil {
		p.log.Warn("prompt generation failed, using fallback variations",
			"execution_id", jc.ExecutionID,
			"job_id", jc.JobID,
			"error", err,
		)
		raw = ""
	}
	variations := NormalizeVariations(raw, p.policy.PromptDelimiter, jc.RequestText, jc.RequestedCount)
	next := jc.WithPrompts(variations)
	p.advance(ctx, next, StepPrompts, progressPrompts, "")
	return next, nil
}

func (p *Pipeline) promptRequest(jc JobContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create exactly %d different detailed scene descriptions for images of: %s.\n", jc.RequestedCount, jc.RequestText)
	b.WriteString("Vary setting, lighting, camera angle, composition and background while keeping the subject recognizable.\n")
	if len(jc.Exclusions) > 0 {
		fmt.Fprintf(&b, "Never include any of the following: %s.\n", strings.Join(jc.Exclusions, ", "))
	}
	fmt.Fprintf(&b, "Separate the descriptions with %q and output nothing else.", p.policy.PromptDelimiter)
	return b.String()
}

// NormalizeVariations splits raw on delim, drops empty fragments and pads or
// truncates so the result always has exactly n entries.
func NormalizeVariations(raw, delim, requestText string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	out := make([]string, 0, n)
	for _, frag := range strings.Split(raw, delim) {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		out = append(out, frag)
		if len(out) == n {
			return out
		}
	}
	for len(out) < n {
		out = append(out, fmt.Sprintf("%s - variation %d", requestText, len(out)+1))
	}
	return out
}
