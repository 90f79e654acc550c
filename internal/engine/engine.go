package engine

import "context"

// Engine abstracts a generative model backend (Gemini, a local Ollama
// server, or OpenRouter). The classifier uses this interface instead of
// depending on a concrete client.
type Engine interface {
	// Generate sends req to the given model and returns the response text.
	// When req.Schema is non-nil, structured JSON output is requested.
	Generate(ctx context.Context, model string, req Request) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by engines that host their own model weights
// and can fetch missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
