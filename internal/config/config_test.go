package config

import (
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvStrSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,c")
	got := envStrSlice("TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEnvStrSliceFallback(t *testing.T) {
	got := envStrSlice("TEST_SLICE_MISSING", []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected fallback [x], got %v", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("SIGNET_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid SIGNET_PORT")
	}
	if got := err.Error(); !contains(got, "SIGNET_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention SIGNET_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("SIGNET_PORT", "abc")
	t.Setenv("SIGNET_OUTBOX_BATCH_SIZE", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "SIGNET_PORT") {
		t.Fatalf("error should mention SIGNET_PORT, got: %s", got)
	}
	if !contains(got, "SIGNET_OUTBOX_BATCH_SIZE") {
		t.Fatalf("error should mention SIGNET_OUTBOX_BATCH_SIZE, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 7777 {
		t.Fatalf("expected default port 7777, got %d", cfg.Port)
	}
	if cfg.MaxMessagesPerMinute != 120 {
		t.Fatalf("expected default rate limit 120, got %d", cfg.MaxMessagesPerMinute)
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("SIGNET_PORT", "9090")
	t.Setenv("SIGNET_LOG_LEVEL", "debug")
	t.Setenv("SIGNET_MAX_MESSAGES_PER_MINUTE", "50")
	t.Setenv("OTEL_SERVICE_NAME", "signetd-test")
	t.Setenv("SIGNET_QDRANT_URL", "https://qdrant.example.com:6334")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.MaxMessagesPerMinute != 50 {
		t.Fatalf("expected rate limit 50, got %d", cfg.MaxMessagesPerMinute)
	}
	if cfg.ServiceName != "signetd-test" {
		t.Fatalf("expected service name signetd-test, got %q", cfg.ServiceName)
	}
	if cfg.QdrantURL != "https://qdrant.example.com:6334" {
		t.Fatalf("expected QdrantURL to be honored, got %q", cfg.QdrantURL)
	}
}

func TestValidate_RejectsZeroIntervals(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.TemporalRecomputeInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject a zero recompute interval")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
