// Package mockai provides deterministic stand-ins for the AI providers and
// object storage. They back TEST_MODE and the end-to-end tests.
package mockai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	colors  = []string{"orange", "black", "white", "gray", "calico"}
	animals = []string{"cat", "dog", "bird", "rabbit", "hamster"}
	poses   = []string{"sitting", "lying", "perched", "resting", "playing"}
	lights  = []string{"in sunlight", "during sunset", "with shadows", "in bright light", "at dawn"}

	countRe   = regexp.MustCompile(`(?i)exactly (\d+)`)
	subjectRe = regexp.MustCompile(`(?i)images of: (.+?)\.\s*(\n|$)`)
)

// Text answers prompt-variation requests with semicolon separated scenes.
type Text struct{}

func (Text) GenerateText(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := 10
	if m := countRe.FindStringSubmatch(user); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			n = v
		}
	}
	subject := strings.TrimSpace(user)
	if m := subjectRe.FindStringSubmatch(user); m != nil {
		subject = strings.TrimSpace(m[1])
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf("%s with %s %s %s %s",
			subject, colors[i%5], animals[i%5], poses[i%5], lights[i%5]))
	}
	return strings.Join(parts, "; "), nil
}
