package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AUTOAPPLY_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AUTOAPPLY_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "ai.base_url", typ: kString, env: "AUTOAPPLY_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.api_key", typ: kString, env: "AUTOAPPLY_AI_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.primary_model", typ: kString, env: "AUTOAPPLY_AI_PRIMARY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.PrimaryModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.PrimaryModel },
	},
	{
		key: "ai.secondary_model", typ: kString, env: "AUTOAPPLY_AI_SECONDARY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.SecondaryModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.SecondaryModel },
	},
	{
		key: "executor.base_url", typ: kString, env: "AUTOAPPLY_EXECUTOR_URL",
		apply:   func(cfg *Config, v any) { cfg.Executor.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Executor.BaseURL },
	},
	{
		key: "executor.worker_secret", typ: kString, env: "AUTOAPPLY_WORKER_SECRET", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Executor.SharedSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Executor.SharedSecret },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: "AUTOAPPLY_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "worker.batch_size", typ: kInt, env: "AUTOAPPLY_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Worker.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.BatchSize },
	},
	{
		key: "worker.stale_after", typ: kDuration, env: "AUTOAPPLY_STALE_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Worker.StaleAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.StaleAfter },
	},
	{
		key: "worker.match_threshold", typ: kInt, env: "AUTOAPPLY_MATCH_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Worker.MatchThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.MatchThreshold },
	},
	{
		key: "log.level", typ: kString, env: "AUTOAPPLY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
