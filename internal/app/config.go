package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/databanana-backend/internal/platform/envutil"
)

const (
	RunModeAPI    = "api"
	RunModeWorker = "worker"
	RunModeAll    = "all"
)

type Config struct {
	RunMode     string
	Port        string
	ServiceName string
	Environment string
	Version     string

	// TestMode swaps every external AI provider for the in-process mocks.
	TestMode        bool
	MockReadyAfter  int
	StorageProvider string
	PublicBaseURL   string

	AuthDisabled  bool
	SignupCredits int64
}

func LoadConfig() (Config, error) {
	cfg := Config{
		RunMode:     strings.ToLower(envutil.String("RUN_MODE", RunModeAll)),
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "databanana"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		TestMode:        envutil.Bool("TEST_MODE", false),
		MockReadyAfter:  envutil.Int("MOCK_BATCH_READY_AFTER", 2),
		StorageProvider: strings.ToLower(envutil.String("STORAGE_PROVIDER", "")),

		AuthDisabled:  envutil.Bool("AUTH_DISABLED", false),
		SignupCredits: envutil.Int64("SIGNUP_CREDITS_CENTS", 0),
	}
	cfg.PublicBaseURL = strings.TrimRight(envutil.String("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")
	if cfg.StorageProvider == "" {
		cfg.StorageProvider = StorageProviderGCS
		if cfg.TestMode {
			cfg.StorageProvider = StorageProviderMemory
		}
	}

	switch cfg.RunMode {
	case RunModeAPI, RunModeWorker, RunModeAll:
	default:
		return Config{}, fmt.Errorf("invalid RUN_MODE %q (want api, worker or all)", cfg.RunMode)
	}
	if cfg.SignupCredits < 0 {
		return Config{}, fmt.Errorf("SIGNUP_CREDITS_CENTS must not be negative")
	}
	return cfg, nil
}

func (c Config) ServesAPI() bool  { return c.RunMode == RunModeAPI || c.RunMode == RunModeAll }
func (c Config) RunsWorker() bool { return c.RunMode == RunModeWorker || c.RunMode == RunModeAll }
