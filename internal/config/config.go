// Package config loads and validates daemon configuration from environment
// variables, and the per-identity agent.yaml file from disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide daemon configuration, sourced from the
// environment. Per-identity settings (embedding model, search weights, …)
// live in AgentConfig, loaded separately from agent.yaml.
type Config struct {
	// Home is the root directory for this identity's files (agent.yaml,
	// did.json, .keys/, memory/). Defaults to ~/.agents.
	Home string

	// Federation server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Qdrant vector search settings (optional; empty URL disables it).
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// Background job intervals.
	TemporalRecomputeInterval time.Duration
	MerkleBuildInterval       time.Duration
	TemporalBatchSize         int

	// Federation protocol settings.
	MaxMessagesPerMinute int
	PingInterval         time.Duration
	HandshakeTimeout      time.Duration
	MaxReconnectAttempts int
	ReplayWindow         time.Duration

	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Returns an error if any environment variable contains an
// unparseable value; missing variables use defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Home:             envStr("SIGNET_HOME", defaultHome()),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "signetd"),
		QdrantURL:        envStr("SIGNET_QDRANT_URL", ""),
		QdrantAPIKey:     envStr("SIGNET_QDRANT_API_KEY", ""),
		QdrantCollection: envStr("SIGNET_QDRANT_COLLECTION", "signet_memories"),
		LogLevel:         envStr("SIGNET_LOG_LEVEL", "info"),
	}

	cfg.Port, errs = collectInt(errs, "SIGNET_PORT", 7777)
	cfg.OutboxBatchSize, errs = collectInt(errs, "SIGNET_OUTBOX_BATCH_SIZE", 100)
	cfg.TemporalBatchSize, errs = collectInt(errs, "SIGNET_TEMPORAL_BATCH_SIZE", 500)
	cfg.MaxMessagesPerMinute, errs = collectInt(errs, "SIGNET_MAX_MESSAGES_PER_MINUTE", 120)
	cfg.MaxReconnectAttempts, errs = collectInt(errs, "SIGNET_MAX_RECONNECT_ATTEMPTS", 10)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.ReadTimeout, errs = collectDuration(errs, "SIGNET_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "SIGNET_WRITE_TIMEOUT", 30*time.Second)
	cfg.OutboxPollInterval, errs = collectDuration(errs, "SIGNET_OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.TemporalRecomputeInterval, errs = collectDuration(errs, "SIGNET_TEMPORAL_RECOMPUTE_INTERVAL", 10*time.Minute)
	cfg.MerkleBuildInterval, errs = collectDuration(errs, "SIGNET_MERKLE_BUILD_INTERVAL", 5*time.Minute)
	cfg.PingInterval, errs = collectDuration(errs, "SIGNET_PING_INTERVAL", 30*time.Second)
	cfg.HandshakeTimeout, errs = collectDuration(errs, "SIGNET_HANDSHAKE_TIMEOUT", 15*time.Second)
	cfg.ReplayWindow, errs = collectDuration(errs, "SIGNET_REPLAY_WINDOW", 5*time.Minute)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agents"
	}
	return home + "/.agents"
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.Home == "" {
		errs = append(errs, errors.New("config: SIGNET_HOME must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: SIGNET_PORT must be between 1 and 65535"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: SIGNET_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: SIGNET_WRITE_TIMEOUT must be positive"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("config: SIGNET_OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.TemporalRecomputeInterval <= 0 {
		errs = append(errs, errors.New("config: SIGNET_TEMPORAL_RECOMPUTE_INTERVAL must be positive"))
	}
	if c.MerkleBuildInterval <= 0 {
		errs = append(errs, errors.New("config: SIGNET_MERKLE_BUILD_INTERVAL must be positive"))
	}
	if c.MaxMessagesPerMinute <= 0 {
		errs = append(errs, errors.New("config: SIGNET_MAX_MESSAGES_PER_MINUTE must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("config: SIGNET_PING_INTERVAL must be positive"))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("config: SIGNET_HANDSHAKE_TIMEOUT must be positive"))
	}
	if c.ReplayWindow <= 0 {
		errs = append(errs, errors.New("config: SIGNET_REPLAY_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

// validateKeyFile checks that a key file exists, is readable, is non-empty,
// and has restrictive permissions (owner-only on Unix).
func validateKeyFile(path, label string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: %s %q: %w", label, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s %q is a directory, expected a file", label, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("config: %s %q is empty", label, path)
	}
	perm := info.Mode().Perm()
	if perm&0o077 != 0 {
		return fmt.Errorf("config: %s %q has overly permissive mode %04o (expected 0600 or stricter)", label, path, perm)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
