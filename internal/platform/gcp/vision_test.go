package gcp

import (
	"math"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/genproto/googleapis/rpc/status"
)

func TestLabelResultFromSortsAndNormalizes(t *testing.T) {
	resp := &visionpb.AnnotateImageResponse{
		LabelAnnotations: []*visionpb.EntityAnnotation{
			{Description: "Wheel", Score: 0.71},
			{Description: "Bicycle", Score: 0.98},
			{Description: " ", Score: 0.99},
		},
		LocalizedObjectAnnotations: []*visionpb.LocalizedObjectAnnotation{
			{
				Name:  "Bicycle",
				Score: 0.9,
				BoundingPoly: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
					{X: 0.1, Y: 0.2}, {X: 0.6, Y: 0.2}, {X: 0.6, Y: 0.8}, {X: 0.1, Y: 0.8},
				}},
			},
			{Name: "Degenerate", Score: 0.5, BoundingPoly: &visionpb.BoundingPoly{}},
		},
	}

	got, err := labelResultFrom(resp)
	if err != nil {
		t.Fatalf("labelResultFrom: %v", err)
	}
	if len(got.Labels) != 2 || got.Labels[0].Name != "Bicycle" || got.Labels[1].Name != "Wheel" {
		t.Fatalf("labels: %+v", got.Labels)
	}
	if len(got.Boxes) != 1 {
		t.Fatalf("boxes: %+v", got.Boxes)
	}
	b := got.Boxes[0]
	if b.Label != "Bicycle" || math.Abs(b.Left-0.1) > 1e-6 || math.Abs(b.Width-0.5) > 1e-6 || math.Abs(b.Height-0.6) > 1e-6 {
		t.Fatalf("box: %+v", b)
	}
}

func TestLabelResultFromSurfacesError(t *testing.T) {
	_, err := labelResultFrom(&visionpb.AnnotateImageResponse{Error: &status.Status{Message: "bad image data"}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
