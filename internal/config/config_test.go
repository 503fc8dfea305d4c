package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("unexpected port %q", cfg.Port)
	}
	if cfg.UpstreamModel != "gpt-realtime" {
		t.Errorf("unexpected model %q", cfg.UpstreamModel)
	}
	if cfg.MinCommitDuration != 100*time.Millisecond {
		t.Errorf("unexpected min commit duration %s", cfg.MinCommitDuration)
	}
	if cfg.FunctionCallCeiling != 0 {
		t.Errorf("expected ceiling disabled by default, got %s", cfg.FunctionCallCeiling)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-test")
	t.Setenv("MIN_COMMIT_DURATION_MS", "250")
	t.Setenv("MAX_BUFFERED_AUDIO_BYTES", "1024")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.MinCommitDuration != 250*time.Millisecond {
		t.Errorf("unexpected min commit duration %s", cfg.MinCommitDuration)
	}
	if cfg.MaxBufferedBytes != 1024 {
		t.Errorf("unexpected buffer cap %d", cfg.MaxBufferedBytes)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-test")
	t.Setenv("MIN_COMMIT_DURATION_MS", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}
