package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/gcp"
	"github.com/yungbote/databanana-backend/internal/platform/gemini"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/platform/mockai"
	"github.com/yungbote/databanana-backend/internal/platform/openai"
	"github.com/yungbote/databanana-backend/internal/realtime/bus"
	"github.com/yungbote/databanana-backend/internal/temporalx"
)

type Clients struct {
	Bus      bus.Bus
	Temporal temporalsdkclient.Client
	Blobs    *blobStore
	Text     pipeline.TextGenerator
	Images   pipeline.ImageBatchClient
	Labeler  pipeline.Labeler

	vision *gcp.Vision
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, tcfg temporalx.Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	b, err := bus.New(log)
	if err != nil {
		return nil, fmt.Errorf("init SSE bus: %w", err)
	}
	c.Bus = b

	tc, err := temporalx.NewClient(ctx, log, tcfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init temporal client: %w", err)
	}
	c.Temporal = tc
	if tc == nil && cfg.RunsWorker() {
		c.Close()
		return nil, fmt.Errorf("RUN_MODE=%s requires TEMPORAL_ADDRESS", cfg.RunMode)
	}

	blobs, err := resolveBlobStore(ctx, log, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Blobs = blobs

	// The API process only signs URLs; providers are the worker's.
	if !cfg.RunsWorker() {
		return c, nil
	}
	if cfg.TestMode {
		log.Warn("TEST_MODE enabled; using mock text, image and label providers")
		c.Text = mockai.Text{}
		c.Images = mockai.NewBatch(cfg.MockReadyAfter)
		c.Labeler = mockai.Labeler{}
		return c, nil
	}

	text, err := openai.NewClient(log, openai.LoadConfig())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	c.Text = text

	images, err := gemini.NewBatchClient(log, gemini.LoadConfig())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init gemini batch client: %w", err)
	}
	c.Images = images

	vision, err := gcp.NewVision(ctx, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init vision client: %w", err)
	}
	c.vision = vision
	c.Labeler = vision
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.vision != nil {
		_ = c.vision.Close()
	}
	if c.Blobs != nil && c.Blobs.close != nil {
		_ = c.Blobs.close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
