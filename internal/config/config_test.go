package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendBaseURL != "https://triviaa-backend.onrender.com" {
		t.Errorf("unexpected backend url: %q", cfg.BackendBaseURL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected http addr: %q", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 3*time.Second || cfg.PollMaxAttempts != 10 {
		t.Errorf("unexpected poll settings: %v / %d", cfg.PollInterval, cfg.PollMaxAttempts)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoad_TrimsTrailingSlash(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://backend.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendBaseURL != "https://backend.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BackendBaseURL)
	}
}

func TestLoad_PollOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("POLL_MAX_ATTEMPTS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.PollMaxAttempts != 4 {
		t.Errorf("unexpected poll max attempts: %d", cfg.PollMaxAttempts)
	}
}

func TestLoad_RejectsBadPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "zero")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-numeric interval")
	}

	t.Setenv("POLL_INTERVAL_MS", "-5")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a negative interval")
	}
}

func TestLoad_SplitsCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://a.example.com, http://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.example.com" {
		t.Errorf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}
