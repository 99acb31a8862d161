// Package config loads service configuration from the environment. Every
// knob has a default; only the secrets are mandatory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the resolved configuration for the API server, the turn worker,
// and the watchdog. One struct is shared because the processes can be
// deployed together or split.
type Config struct {
	// HTTP
	HTTPPort int

	// Secrets
	SessionSecret string // HMAC key for session cookies
	EncryptSecret string // 32-byte AES key for token secrets
	BrainAPIKey   string // pre-shared key guarding the internal surface

	// Worker deployment. Empty WorkerBaseURL means the worker runs in
	// process and nudges dispatch locally.
	WorkerBaseURL string

	// LLM
	LLMBaseURL      string
	LLMDefaultModel string
	LLMTimeout      time.Duration
	MaxRetries      int

	// Turn engine
	HistoryWindow    int
	MinHistoryWindow int
	SummaryThreshold int
	SummaryWindow    int
	MaxMessageLength int
	MaxRunIterations int

	// Watchdog
	WatchdogInterval time.Duration
	StallTimeout     time.Duration
	IdleTimeout      time.Duration

	// Demo instance protection. Zero ids disable the corresponding guard.
	DemoUserID          int64
	DemoTokenID         int64
	DemoProjectIDs      []int64
	SnapshotProjectID   int64
	DemoMessageLimitMax int
}

// Load reads configuration from the environment and validates the secrets.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getInt("HTTP_PORT", 8080),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		EncryptSecret:   os.Getenv("ENCRYPT_SECRET"),
		BrainAPIKey:     os.Getenv("BRAIN_API_KEY"),
		WorkerBaseURL:   strings.TrimRight(os.Getenv("WORKER_BASE_URL"), "/"),
		LLMBaseURL:      getString("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMDefaultModel: getString("LLM_DEFAULT_MODEL", "gpt-4o"),
		LLMTimeout:      getDuration("LLM_TIMEOUT", 60*time.Second),
		MaxRetries:      getInt("MAX_RETRIES", 3),

		HistoryWindow:    getInt("HISTORY_WINDOW", 14),
		MinHistoryWindow: getInt("MIN_HISTORY_WINDOW", 5),
		SummaryThreshold: getInt("SUMMARY_THRESHOLD", 10),
		SummaryWindow:    getInt("SUMMARY_WINDOW", 20),
		MaxMessageLength: getInt("MAX_MESSAGE_LENGTH", 2000),
		MaxRunIterations: getInt("MAX_RUN_ITERATIONS", 100),

		WatchdogInterval: getDuration("WATCHDOG_INTERVAL", 30*time.Second),
		StallTimeout:     getDuration("STALL_TIMEOUT", 90*time.Second),
		IdleTimeout:      getDuration("IDLE_TIMEOUT", 90*time.Second),

		DemoUserID:          getInt64("DEMO_USER_ID", 0),
		DemoTokenID:         getInt64("DEMO_TOKEN_ID", 0),
		DemoProjectIDs:      getInt64List("DEMO_PROJECT_IDS"),
		SnapshotProjectID:   getInt64("SNAPSHOT_PROJECT_ID", 0),
		DemoMessageLimitMax: getInt("DEMO_MESSAGE_LIMIT_MAX", 100),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.EncryptSecret) != 32 {
		return nil, fmt.Errorf("ENCRYPT_SECRET must be exactly 32 bytes, got %d", len(cfg.EncryptSecret))
	}
	if cfg.BrainAPIKey == "" {
		return nil, fmt.Errorf("BRAIN_API_KEY is required")
	}
	if cfg.MinHistoryWindow > cfg.HistoryWindow {
		return nil, fmt.Errorf("MIN_HISTORY_WINDOW (%d) exceeds HISTORY_WINDOW (%d)",
			cfg.MinHistoryWindow, cfg.HistoryWindow)
	}
	return cfg, nil
}

// IsDemoProject reports whether id is one of the protected demo projects.
func (c *Config) IsDemoProject(id int64) bool {
	for _, p := range c.DemoProjectIDs {
		if p == id {
			return true
		}
	}
	return false
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
