package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	serviceName   = "relay"
	accountAPIKey = "openai_api_key"
	accountToken  = "api_token"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
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
		key: "server.port", typ: kInt, env: "RELAY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "backend.active", typ: kString, env: "RELAY_BACKEND_ACTIVE",
		apply:   func(cfg *Config, v any) { cfg.Backend.Active = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Active },
	},
	{
		key: "openai.api_key", typ: kString, env: "RELAY_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.model", typ: kString, env: "RELAY_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.temperature", typ: kFloat, env: "RELAY_OPENAI_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.OpenAI.Temperature },
	},
	{
		key: "openai.max_tokens", typ: kInt, env: "RELAY_OPENAI_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.OpenAI.MaxTokens },
	},
	{
		key: "local.base_url", typ: kString, env: "RELAY_LOCAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Local.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Local.BaseURL },
	},
	{
		key: "local.model", typ: kString, env: "RELAY_LOCAL_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Local.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Local.Model },
	},
	{
		key: "local.temperature", typ: kFloat, env: "RELAY_LOCAL_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Local.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Local.Temperature },
	},
	{
		key: "memory.enabled", typ: kBool, env: "RELAY_MEMORY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Memory.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Memory.Enabled },
	},
	{
		key: "memory.mode", typ: kString, env: "RELAY_MEMORY_MODE",
		apply:   func(cfg *Config, v any) { cfg.Memory.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.Mode },
	},
	{
		key: "memory.storage_path", typ: kString, env: "RELAY_MEMORY_STORAGE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Memory.StoragePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.StoragePath },
	},
	{
		key: "memory.max_history", typ: kInt, env: "RELAY_MEMORY_MAX_HISTORY",
		apply:   func(cfg *Config, v any) { cfg.Memory.MaxHistory = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.MaxHistory },
	},
	{
		key: "memory.vector_store", typ: kString, env: "RELAY_MEMORY_VECTOR_STORE",
		apply:   func(cfg *Config, v any) { cfg.Memory.VectorStore = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.VectorStore },
	},
	{
		key: "memory.embedding_model", typ: kString, env: "RELAY_MEMORY_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Memory.EmbeddingModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.EmbeddingModel },
	},
	{
		key: "log.level", typ: kString, env: "RELAY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
