package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, read once at startup from the
// environment. Per-session behavior (idle timeout, audio formats) comes from
// the client's Settings message instead and is deliberately absent here.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// UpstreamURL is the realtime provider's websocket endpoint.
	UpstreamURL string

	// UpstreamAPIKey authenticates against the provider.
	UpstreamAPIKey string

	// UpstreamModel is the default model when Settings does not name one.
	UpstreamModel string

	// FunctionBackendURL is the base URL of the HTTP function-execution
	// backend. Empty disables server-side function execution.
	FunctionBackendURL string

	// JWTSecret validates client bearer tokens. Empty disables validation
	// and accepts any bearer token as an opaque principal.
	JWTSecret string

	// MinCommitDuration is the minimum buffered audio below which an
	// end-of-turn never commits.
	MinCommitDuration time.Duration

	// MaxBufferedBytes caps per-turn buffered client audio. Zero means
	// unlimited.
	MaxBufferedBytes int

	// FunctionCallCeiling bounds client-side function-call waits. Zero
	// disables the ceiling.
	FunctionCallCeiling time.Duration

	// MaxSessions caps concurrent sessions; connections beyond it are
	// rejected with 503. Zero means unlimited.
	MaxSessions int
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getenv("PORT", "8080"),
		UpstreamURL:        getenv("UPSTREAM_URL", "wss://api.openai.com/v1/realtime"),
		UpstreamAPIKey:     os.Getenv("UPSTREAM_API_KEY"),
		UpstreamModel:      getenv("UPSTREAM_MODEL", "gpt-realtime"),
		FunctionBackendURL: os.Getenv("FUNCTION_BACKEND_URL"),
		JWTSecret:          os.Getenv("BRIDGE_JWT_SECRET"),
	}

	if cfg.UpstreamAPIKey == "" {
		return nil, fmt.Errorf("UPSTREAM_API_KEY is required")
	}

	var err error
	if cfg.MinCommitDuration, err = getenvDuration("MIN_COMMIT_DURATION_MS", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FunctionCallCeiling, err = getenvDuration("FUNCTION_CALL_CEILING_MS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxBufferedBytes, err = getenvInt("MAX_BUFFERED_AUDIO_BYTES", 10*1024*1024); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = getenvInt("MAX_SESSIONS", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be milliseconds as an integer: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
