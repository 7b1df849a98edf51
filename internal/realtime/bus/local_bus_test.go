package bus

import (
	"context"
	"testing"

	"github.com/yungbote/databanana-backend/internal/realtime"
)

func TestLocalBusForwards(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	var got []realtime.SSEMessage
	if err := b.StartForwarder(ctx, func(m realtime.SSEMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	if err := b.Publish(ctx, realtime.SSEMessage{Channel: "x", Event: realtime.SSEEventGenerationProgress}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "x" {
		t.Fatalf("forwarded: %+v", got)
	}

	_ = b.Close()
	_ = b.Publish(ctx, realtime.SSEMessage{Channel: "x"})
	if len(got) != 1 {
		t.Fatalf("publish after close should not forward, got %d", len(got))
	}
}
