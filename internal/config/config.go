package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	AI       AIConfig
	Executor ExecutorConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type AIConfig struct {
	// PrimaryModel and SecondaryModel are OpenRouter-compatible model ids.
	// The secondary model is tried when the primary stage fails retryably.
	BaseURL        string
	APIKey         string
	PrimaryModel   string
	SecondaryModel string
}

type ExecutorConfig struct {
	// BaseURL of the browser-automation executor.
	BaseURL string
	// SharedSecret authenticates executor→service callbacks.
	SharedSecret string
}

type WorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	StaleAfter     time.Duration // processing entries older than this are failed
	MatchThreshold int           // score required to enqueue, unless the user overrides it
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4200},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		AI: AIConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			PrimaryModel:   "anthropic/claude-sonnet-4",
			SecondaryModel: "openai/gpt-4o-mini",
		},
		Executor: ExecutorConfig{BaseURL: "http://localhost:4310"},
		Worker: WorkerConfig{
			PollInterval:   5 * time.Second,
			BatchSize:      5,
			StaleAfter:     15 * time.Minute,
			MatchThreshold: 70,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/autoapply/config.json) and applies AUTOAPPLY_*
// environment overrides. The worker shared secret and AI API key are
// required; everything else has a default.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Executor.SharedSecret == "" {
		return Config{}, fmt.Errorf("missing required config: worker shared secret. Set AUTOAPPLY_WORKER_SECRET")
	}
	if cfg.AI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: AI API key. Set AUTOAPPLY_AI_API_KEY")
	}

	return cfg, nil
}
