package app

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/services"
)

type Services struct {
	Store       *services.PipelineStore
	Pipeline    *pipeline.Pipeline
	Generations services.GenerationService
	Users       services.UserService
	Gallery     services.GalleryService
	Payments    services.PaymentService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, policy pipeline.Policy, taskQueue string, r repos.Repos, c *Clients) (Services, error) {
	log.Info("Wiring services...")
	store := services.NewPipelineStore(db, log, r)

	var workflows services.WorkflowClient
	if c.Temporal != nil {
		workflows = c.Temporal
	}

	out := Services{
		Store:       store,
		Generations: services.NewGenerationService(log, r, c.Blobs.store, workflows, taskQueue, policy),
		Users:       services.NewUserService(log, r.Users, cfg.SignupCredits),
		Gallery:     services.NewGalleryService(log, r),
		Payments:    services.NewPaymentService(log, r.Ledger, services.LoadPaymentConfig()),
	}

	if cfg.RunsWorker() {
		p, err := pipeline.New(pipeline.Deps{
			Log:      log,
			Ledger:   store,
			Jobs:     store,
			Datasets: store,
			Text:     c.Text,
			Images:   c.Images,
			Blobs:    c.Blobs.store,
			Labeler:  c.Labeler,
			Notifier: services.NewProgressNotifier(c.Bus),
			Policy:   policy,
			Now:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("init pipeline: %w", err)
		}
		out.Pipeline = p
	}
	return out, nil
}
