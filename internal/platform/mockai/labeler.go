package mockai

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/yungbote/databanana-backend/internal/pipeline"
)

var labelSets = [][]string{
	{"Cat", "Animal", "Pet", "Windowsill", "Indoor"},
	{"Dog", "Animal", "Pet", "Grass", "Outdoor"},
	{"Bird", "Animal", "Branch", "Sky", "Nature"},
}

// Labeler returns a stable label set chosen by a hash of the payload.
type Labeler struct{}

func (Labeler) DetectLabels(ctx context.Context, data []byte, mimeType string) (pipeline.LabelResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.LabelResult{}, err
	}
	if len(data) == 0 {
		return pipeline.LabelResult{}, fmt.Errorf("empty image payload")
	}
	h := fnv.New32a()
	_, _ = h.Write(data)
	set := labelSets[int(h.Sum32()%uint32(len(labelSets)))]

	var res pipeline.LabelResult
	for i, name := range set {
		res.Labels = append(res.Labels, pipeline.Label{Name: name, Confidence: 98 - float64(i)*3})
	}
	res.Boxes = append(res.Boxes, pipeline.BoundingBox{
		Label:      set[0],
		Confidence: 95.2,
		Left:       0.1,
		Top:        0.2,
		Width:      0.5,
		Height:     0.6,
	})
	return res, nil
}
