package services

import (
	"context"
	"fmt"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/realtime/bus"
)

// ProgressNotifier publishes pipeline events on the SSE bus, one channel per
// execution id.
type ProgressNotifier struct {
	bus bus.Bus
}

func NewProgressNotifier(b bus.Bus) *ProgressNotifier {
	return &ProgressNotifier{bus: b}
}

func (n *ProgressNotifier) Push(ctx context.Context, ev pipeline.ProgressEvent) error {
	if n == nil || n.bus == nil {
		return fmt.Errorf("progress bus not configured")
	}
	return n.bus.Publish(ctx, ProgressMessage(ev))
}

// ProgressMessage wraps ev in the SSE envelope subscribers receive.
func ProgressMessage(ev pipeline.ProgressEvent) realtime.SSEMessage {
	if ev.Message == "" {
		ev.Message = pipeline.StepMessage(ev.Step)
	}
	event := realtime.SSEEventGenerationProgress
	switch ev.Status {
	case pipeline.StatusCompleted:
		event = realtime.SSEEventGenerationCompleted
	case pipeline.StatusFailed:
		event = realtime.SSEEventGenerationFailed
	}
	return realtime.SSEMessage{Channel: ev.ExecutionID, Event: event, Data: ev}
}
