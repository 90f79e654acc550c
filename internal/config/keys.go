package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "APEX_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.backend", typ: kString, env: "APEX_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "APEX_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.mongo_uri", typ: kString, env: "APEX_STORAGE_MONGO_URI",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoURI },
	},
	{
		key: "storage.mongo_database", typ: kString, env: "APEX_STORAGE_MONGO_DATABASE",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoDatabase = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoDatabase },
	},
	{
		key: "storage.redis_addr", typ: kString, env: "APEX_STORAGE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisAddr },
	},
	{
		key: "storage.redis_password", typ: kString, env: "APEX_STORAGE_REDIS_PASSWORD",
		secret: true, account: "redis_password",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisPassword },
	},
	{
		key: "storage.redis_db", typ: kInt, env: "APEX_STORAGE_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisDB = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.RedisDB },
	},
	{
		key: "classifier.provider", typ: kString, env: "APEX_CLASSIFIER_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Classifier.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Classifier.Provider },
	},
	{
		key: "classifier.model", typ: kString, env: "APEX_CLASSIFIER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Classifier.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Classifier.Model },
	},
	{
		key: "classifier.timeout", typ: kString, env: "APEX_CLASSIFIER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Classifier.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Classifier.Timeout },
	},
	{
		key: "classifier.page_excerpts", typ: kBool, env: "APEX_CLASSIFIER_PAGE_EXCERPTS",
		apply:   func(cfg *Config, v any) { cfg.Classifier.PageExcerpts = v.(bool) },
		extract: func(cfg Config) any { return cfg.Classifier.PageExcerpts },
	},
	{
		key: "gemini.api_key", typ: kString, env: "APEX_GEMINI_API_KEY",
		secret: true, account: "gemini_api_key",
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.base_url", typ: kString, env: "APEX_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "ollama.base_url", typ: kString, env: "APEX_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "APEX_OPENROUTER_API_KEY",
		secret: true, account: "openrouter_api_key",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "openrouter.base_url", typ: kString, env: "APEX_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.BaseURL },
	},
	{
		key: "log.level", typ: kString, env: "APEX_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) *keySpec {
	for i := range specs {
		if specs[i].key == key {
			return &specs[i]
		}
	}
	return nil
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
		}
	}
}
