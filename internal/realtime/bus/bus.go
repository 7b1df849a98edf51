package bus

import (
	"context"

	"github.com/yungbote/databanana-backend/internal/platform/envutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/realtime"
)

// Bus carries SSE messages from workers to whichever API process holds the
// subscriber.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}

// New returns the Redis bus when REDIS_ADDR is set and an in-process bus
// otherwise. The in-process bus only reaches subscribers of this process.
func New(log *logger.Logger) (Bus, error) {
	if envutil.String("REDIS_ADDR", "") == "" {
		log.Warn("REDIS_ADDR not set; using in-process SSE bus")
		return NewLocalBus(), nil
	}
	return NewRedisBus(log)
}
