package engine

import (
	"context"
	"fmt"
)

// Providers accepted by Detect.
const (
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider string

	GeminiAPIKey  string
	GeminiBaseURL string

	OllamaBaseURL string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
}

// ResolveProvider returns cfg.Provider, or for an empty provider Gemini when
// a key is configured and the local Ollama server otherwise.
func ResolveProvider(cfg DetectConfig) string {
	if cfg.Provider != "" {
		return cfg.Provider
	}
	if cfg.GeminiAPIKey != "" {
		return ProviderGemini
	}
	return ProviderOllama
}

// Detect returns the engine for ResolveProvider(cfg).
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch provider := ResolveProvider(cfg); provider {
	case ProviderGemini:
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case ProviderOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter API key is not set")
		}
		return NewOpenRouterEngine(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", provider)
	}
}
