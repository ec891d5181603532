package config

import (
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	data map[string]any
}

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	return i, ok, nil
}

func (m mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m mapBackend) Delete(key string) error          { delete(m.data, key); return nil }

func requiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("AUTOAPPLY_WORKER_SECRET", "test-secret")
	t.Setenv("AUTOAPPLY_AI_API_KEY", "test-key")
}

// TestDefaults verifies default values survive an empty backend.
func TestDefaults(t *testing.T) {
	requiredSecrets(t)

	cfg, err := loadWith(mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("Worker.PollInterval = %v, want 5s", cfg.Worker.PollInterval)
	}
	if cfg.Worker.MatchThreshold != 70 {
		t.Errorf("Worker.MatchThreshold = %d, want 70", cfg.Worker.MatchThreshold)
	}
	if cfg.Worker.StaleAfter != 15*time.Minute {
		t.Errorf("Worker.StaleAfter = %v, want 15m", cfg.Worker.StaleAfter)
	}
	if cfg.AI.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
}

// TestBackendValues verifies backend values override defaults.
func TestBackendValues(t *testing.T) {
	requiredSecrets(t)

	cfg, err := loadWith(mapBackend{data: map[string]any{
		"server.port":          9999,
		"worker.poll_interval": "250ms",
		"executor.base_url":    "http://executor:8080",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Worker.PollInterval != 250*time.Millisecond {
		t.Errorf("Worker.PollInterval = %v, want 250ms", cfg.Worker.PollInterval)
	}
	if cfg.Executor.BaseURL != "http://executor:8080" {
		t.Errorf("Executor.BaseURL = %q", cfg.Executor.BaseURL)
	}
}

// TestEnvOverride verifies environment variables win over backend values.
func TestEnvOverride(t *testing.T) {
	requiredSecrets(t)
	t.Setenv("AUTOAPPLY_MATCH_THRESHOLD", "85")

	cfg, err := loadWith(mapBackend{data: map[string]any{
		"worker.match_threshold": 50,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Worker.MatchThreshold != 85 {
		t.Errorf("Worker.MatchThreshold = %d, want 85 from env", cfg.Worker.MatchThreshold)
	}
}

// TestMissingSecret verifies the loader refuses to run without the shared secret.
func TestMissingSecret(t *testing.T) {
	t.Setenv("AUTOAPPLY_WORKER_SECRET", "")
	t.Setenv("AUTOAPPLY_AI_API_KEY", "test-key")

	_, err := loadWith(mapBackend{data: map[string]any{}})
	if err == nil || !strings.Contains(err.Error(), "worker shared secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}
