package app

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RUN_MODE", "")
	t.Setenv("TEST_MODE", "")
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RunMode != RunModeAll || !cfg.ServesAPI() || !cfg.RunsWorker() {
		t.Fatalf("run mode: %+v", cfg)
	}
	if cfg.StorageProvider != StorageProviderGCS {
		t.Fatalf("storage provider: %q", cfg.StorageProvider)
	}
	if cfg.PublicBaseURL != "http://localhost:9090" {
		t.Fatalf("public base url: %q", cfg.PublicBaseURL)
	}
}

func TestLoadConfigTestModeUsesMemoryStorage(t *testing.T) {
	t.Setenv("RUN_MODE", "worker")
	t.Setenv("TEST_MODE", "true")
	t.Setenv("STORAGE_PROVIDER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StorageProvider != StorageProviderMemory {
		t.Fatalf("storage provider: %q", cfg.StorageProvider)
	}
	if cfg.ServesAPI() || !cfg.RunsWorker() {
		t.Fatalf("worker mode: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("RUN_MODE", "batch")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected invalid RUN_MODE error")
	}
	t.Setenv("RUN_MODE", "api")
	t.Setenv("SIGNUP_CREDITS_CENTS", "-5")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected negative signup credit error")
	}
}
