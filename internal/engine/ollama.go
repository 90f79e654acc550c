package engine

import (
	"context"
	"io"

	"github.com/apexai/apex/internal/ollama"
)

// Compile-time checks.
var (
	_ Engine       = (*OllamaEngine)(nil)
	_ ModelManager = (*OllamaEngine)(nil)
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
// Images are attached to the user message. Any other data part fails with
// ErrUnsupportedMedia. Grounding is ignored.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Generate(ctx context.Context, model string, req Request) (string, error) {
	if err := imagesOnly(ProviderOllama, req.Parts); err != nil {
		return "", err
	}

	msg := ollama.Message{Role: "user", Content: req.Text()}
	for _, p := range req.Parts {
		if p.IsImage() {
			msg.Images = append(msg.Images, p.Data)
		}
	}

	var format any
	if req.Schema != nil {
		format = req.Schema
	}
	return e.client.Chat(ctx, model, []ollama.Message{msg}, format)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

// Prepare pulls and warms up model.
func (e *OllamaEngine) Prepare(ctx context.Context, model string, w io.Writer) error {
	return ollama.EnsureReady(ctx, e.client, model, w)
}
