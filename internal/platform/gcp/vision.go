package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

const (
	maxLabels  = 20
	maxObjects = 20
)

// Vision labels images with label detection and object localization.
type Vision struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVision(ctx context.Context, log *logger.Logger) (*Vision, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{log: log.With("service", "gcp.Vision"), client: client}, nil
}

func (v *Vision) DetectLabels(ctx context.Context, data []byte, mimeType string) (pipeline.LabelResult, error) {
	if len(data) == 0 {
		return pipeline.LabelResult{}, fmt.Errorf("empty image")
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: maxLabels},
				{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: maxObjects},
			},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return pipeline.LabelResult{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return pipeline.LabelResult{}, nil
	}
	return labelResultFrom(resp.GetResponses()[0])
}

func (v *Vision) Close() error {
	return v.client.Close()
}

// labelResultFrom converts one annotation into labels sorted by confidence
// and boxes with normalized coordinates.
func labelResultFrom(r *visionpb.AnnotateImageResponse) (pipeline.LabelResult, error) {
	var out pipeline.LabelResult
	if r == nil {
		return out, nil
	}
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return out, fmt.Errorf("vision annotate error: %s", r.GetError().GetMessage())
	}

	for _, a := range r.GetLabelAnnotations() {
		name := strings.TrimSpace(a.GetDescription())
		if name == "" {
			continue
		}
		out.Labels = append(out.Labels, pipeline.Label{Name: name, Confidence: float64(a.GetScore())})
	}
	sort.SliceStable(out.Labels, func(i, j int) bool { return out.Labels[i].Confidence > out.Labels[j].Confidence })

	for _, o := range r.GetLocalizedObjectAnnotations() {
		box, ok := normalizedBox(o.GetBoundingPoly())
		if !ok {
			continue
		}
		box.Label = o.GetName()
		box.Confidence = float64(o.GetScore())
		out.Boxes = append(out.Boxes, box)
	}
	return out, nil
}

func normalizedBox(bp *visionpb.BoundingPoly) (pipeline.BoundingBox, bool) {
	vs := bp.GetNormalizedVertices()
	if len(vs) == 0 {
		return pipeline.BoundingBox{}, false
	}
	minX, minY, maxX, maxY := 1.0, 1.0, 0.0, 0.0
	for _, v := range vs {
		x, y := float64(v.GetX()), float64(v.GetY())
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	if maxX <= minX || maxY <= minY {
		return pipeline.BoundingBox{}, false
	}
	return pipeline.BoundingBox{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}, true
}
