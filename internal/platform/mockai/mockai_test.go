package mockai

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/pipeline"
)

func TestTextHonorsRequestedCount(t *testing.T) {
	user := "Create exactly 12 different detailed scene descriptions for images of: a cat on a windowsill.\nSeparate with ;"
	raw, err := Text{}.GenerateText(context.Background(), "sys", user)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	got := pipeline.NormalizeVariations(raw, ";", "a cat on a windowsill", 12)
	if len(got) != 12 {
		t.Fatalf("variations: want=12 got=%d", len(got))
	}
	if !strings.HasPrefix(got[0], "a cat on a windowsill with orange cat") {
		t.Fatalf("first variation: %q", got[0])
	}
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(2)
	b.Size = 64
	handle, err := b.Submit(ctx, "gen", []string{"one", "two"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 2; i++ {
		desc, err := b.Describe(ctx, handle)
		if err != nil {
			t.Fatalf("Describe: %v", err)
		}
		if desc.State != "BATCH_STATE_PENDING" || len(desc.Inline) != 0 {
			t.Fatalf("describe %d: %+v", i, desc)
		}
	}
	desc, err := b.Describe(ctx, handle)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if o, _ := pipeline.TranslateState(desc.State); o != pipeline.OutcomeCompleted {
		t.Fatalf("state: %s", desc.State)
	}
	if len(desc.Inline) != 2 || desc.Inline[1].Index != 1 || desc.Inline[1].MimeType != "image/png" {
		t.Fatalf("inline: %+v", desc.Inline)
	}
	img, err := png.Decode(bytes.NewReader(desc.Inline[0].Data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Fatalf("width: %d", img.Bounds().Dx())
	}
}

func TestBatchFailMarker(t *testing.T) {
	ctx := context.Background()
	b := NewBatch(0)
	handle, _ := b.Submit(ctx, "gen", []string{"ok", "boom " + FailMarker})
	desc, err := b.Describe(ctx, handle)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if o, _ := pipeline.TranslateState(desc.State); o != pipeline.OutcomeFailed {
		t.Fatalf("state: %s", desc.State)
	}
}

func TestLabelerIsStable(t *testing.T) {
	data := []byte("payload")
	a, err := Labeler{}.DetectLabels(context.Background(), data, "image/png")
	if err != nil {
		t.Fatalf("DetectLabels: %v", err)
	}
	b, _ := Labeler{}.DetectLabels(context.Background(), data, "image/png")
	if len(a.Labels) != 5 || a.Labels[0].Name != b.Labels[0].Name || len(a.Boxes) != 1 {
		t.Fatalf("labels: %+v vs %+v", a, b)
	}
	if _, err := (Labeler{}).DetectLabels(context.Background(), nil, "image/png"); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	b := NewBlobs("http://cdn.test/")
	if err := b.Put(ctx, "generated/u 1/0.png", []byte("x"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := b.Get(ctx, "generated/u 1/0.png")
	if err != nil || string(got) != "x" {
		t.Fatalf("Get: %q %v", got, err)
	}
	if _, err := b.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound got %v", err)
	}
	u, err := b.SignedURL(ctx, "generated/u 1/0.png", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(u, "http://cdn.test/generated/u%201/0.png?expires=") {
		t.Fatalf("url: %s", u)
	}
	if ct, _ := b.ContentType("generated/u 1/0.png"); ct != "image/png" {
		t.Fatalf("content type: %q", ct)
	}
}
