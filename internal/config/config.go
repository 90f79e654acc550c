package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service is the keychain service name under which secrets are stored.
const Service = "apex"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Classifier ClassifierConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	Backend       string
	DataDir       string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ClassifierConfig struct {
	Provider     string
	Model        string
	Timeout      string
	PageExcerpts bool
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
}

type OllamaConfig struct {
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
}

type LogConfig struct {
	Level string
}

// Default model per provider, used when classifier.model is empty.
var defaultModels = map[string]string{
	"gemini":     "gemini-2.5-flash",
	"ollama":     "llava",
	"openrouter": "google/gemini-2.5-flash",
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			Backend:       "sqlite",
			DataDir:       defaultDataDir(),
			MongoDatabase: "apex",
			RedisAddr:     "localhost:6379",
		},
		Classifier: ClassifierConfig{
			PageExcerpts: true,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: ai.apex.cli) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/apex/config.json
// and secrets fall back to $XDG_DATA_HOME/apex/secrets.json.
//
// Environment variables (APEX_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applyKeychain(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyKeychain fills secrets that neither the backend nor the environment set.
func applyKeychain(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(Service, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "", "sqlite", "mongo", "redis", "memory":
	default:
		return fmt.Errorf("invalid storage.backend %q: want sqlite, mongo, redis or memory", c.Storage.Backend)
	}
	switch c.Classifier.Provider {
	case "", "gemini", "ollama", "openrouter":
	default:
		return fmt.Errorf("invalid classifier.provider %q: want gemini, ollama or openrouter", c.Classifier.Provider)
	}
	if _, err := c.ClassifierTimeout(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// ClassifierTimeout parses classifier.timeout. Empty means no deadline.
func (c Config) ClassifierTimeout() (time.Duration, error) {
	if c.Classifier.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Classifier.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid classifier.timeout %q: %w", c.Classifier.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid classifier.timeout %q: negative", c.Classifier.Timeout)
	}
	return d, nil
}

// ModelFor returns classifier.model, or the default model of provider.
func (c Config) ModelFor(provider string) string {
	if c.Classifier.Model != "" {
		return c.Classifier.Model
	}
	return defaultModels[provider]
}

// LogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
