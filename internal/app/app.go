package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/data/db"
	"github.com/yungbote/databanana-backend/internal/data/repos"
	httpapi "github.com/yungbote/databanana-backend/internal/http"
	"github.com/yungbote/databanana-backend/internal/observability"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/envutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/temporalx"
	"github.com/yungbote/databanana-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Repos
	Clients  *Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Server   *httpapi.Server
	Worker   *temporalworker.Runner

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig()
	if err != nil {
		log.Sync()
		return nil, err
	}
	policy, err := pipeline.LoadPolicy()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load pipeline policy: %w", err)
	}
	tcfg := temporalx.LoadConfig()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg, tcfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.New(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, policy, tcfg.TaskQueue, reposet, clients)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		pg:           pg,
		otelShutdown: otelShutdown,
	}

	if cfg.ServesAPI() {
		a.SSEHub = realtime.NewSSEHub(log)
		mw, err := wireMiddleware(log, cfg, serviceset)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Server = wireServer(log, cfg, wireHandlers(log, serviceset, a.SSEHub, clients.Blobs), mw)
	}
	if cfg.RunsWorker() {
		w, err := temporalworker.NewRunner(log, clients.Temporal, tcfg, serviceset.Pipeline)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Worker = w
	}

	log.Info("App initialized", "run_mode", cfg.RunMode, "test_mode", cfg.TestMode, "storage", cfg.StorageProvider)
	return a, nil
}

// Run starts the configured roles and blocks until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Server != nil {
		// Progress from workers reaches this process's SSE clients here.
		if err := a.Clients.Bus.StartForwarder(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
		g.Go(func() error {
			addr := ":" + a.Cfg.Port
			a.Log.Info("Server listening", "addr", addr)
			return a.Server.Run(addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}
	if a.Worker != nil {
		g.Go(func() error {
			if err := a.Worker.Start(gctx); err != nil {
				return fmt.Errorf("temporal worker: %w", err)
			}
			<-gctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
