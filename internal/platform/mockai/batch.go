package mockai

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/databanana-backend/internal/pipeline"
)

// FailMarker in a prompt makes the whole mock batch end in failure.
const FailMarker = "[mock-fail]"

type mockBatch struct {
	prompts   []string
	describes int
}

// Batch simulates an asynchronous image batch. A batch reports PENDING for
// its first ReadyAfter status checks and then SUCCEEDED with one rendered
// PNG per prompt.
type Batch struct {
	ReadyAfter int
	Size       int

	mu      sync.Mutex
	batches map[string]*mockBatch
	face    font.Face
}

func NewBatch(readyAfter int) *Batch {
	return &Batch{ReadyAfter: readyAfter, Size: 256, batches: map[string]*mockBatch{}}
}

func (b *Batch) Submit(ctx context.Context, displayName string, prompts []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(prompts) == 0 {
		return "", fmt.Errorf("no prompts to submit")
	}
	handle := "batches/mock-" + uuid.NewString()
	b.mu.Lock()
	b.batches[handle] = &mockBatch{prompts: append([]string(nil), prompts...)}
	b.mu.Unlock()
	return handle, nil
}

func (b *Batch) Describe(ctx context.Context, handle string) (pipeline.BatchDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.BatchDescriptor{}, err
	}
	b.mu.Lock()
	mb, ok := b.batches[handle]
	if ok {
		mb.describes++
	}
	b.mu.Unlock()
	if !ok {
		return pipeline.BatchDescriptor{}, fmt.Errorf("batch %s not found", handle)
	}

	desc := pipeline.BatchDescriptor{Handle: handle}
	switch {
	case mb.describes <= b.ReadyAfter:
		desc.State = "BATCH_STATE_PENDING"
	case failed(mb.prompts):
		desc.State = "BATCH_STATE_FAILED"
	default:
		desc.State = "BATCH_STATE_SUCCEEDED"
		for i, p := range mb.prompts {
			png, err := b.render(i, p)
			if err != nil {
				desc.Inline = append(desc.Inline, pipeline.BatchResult{Index: i, Err: err.Error()})
				continue
			}
			desc.Inline = append(desc.Inline, pipeline.BatchResult{Index: i, Data: png, MimeType: "image/png"})
		}
	}
	return desc, nil
}

func (b *Batch) ReadResultsFile(ctx context.Context, file string) ([]pipeline.BatchResult, error) {
	return nil, fmt.Errorf("mock batches deliver results inline")
}

func failed(prompts []string) bool {
	for _, p := range prompts {
		if strings.Contains(p, FailMarker) {
			return true
		}
	}
	return false
}

// render draws a placeholder image labeled with its position and prompt.
func (b *Batch) render(i int, prompt string) ([]byte, error) {
	size := b.Size
	if size <= 0 {
		size = 256
	}
	dc := gg.NewContext(size, size)
	dc.SetColor(swatch(i))
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	face, err := b.fontFace()
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(face)
	dc.SetColor(color.White)
	dc.DrawStringAnchored("#"+strconv.Itoa(i+1), float64(size)/2, float64(size)/4, 0.5, 0.5)
	dc.DrawStringWrapped(prompt, float64(size)/2, float64(size)*0.6, 0.5, 0.5, float64(size)*0.9, 1.3, gg.AlignCenter)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Batch) fontFace() (font.Face, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.face != nil {
		return b.face, nil
	}
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	b.face = truetype.NewFace(parsed, &truetype.Options{Size: 14, DPI: 72, Hinting: font.HintingNone})
	return b.face, nil
}

func swatch(i int) color.Color {
	palette := []color.NRGBA{
		{0xE0, 0x7A, 0x1F, 0xFF},
		{0x2B, 0x2D, 0x42, 0xFF},
		{0x8D, 0x99, 0xAE, 0xFF},
		{0x4A, 0x7C, 0x59, 0xFF},
		{0xB5, 0x5D, 0x9C, 0xFF},
	}
	return palette[i%len(palette)]
}
