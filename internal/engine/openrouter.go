package engine

import (
	"context"
	"encoding/base64"

	"github.com/apexai/apex/internal/proxy"
)

var _ Engine = (*OpenRouterEngine)(nil)

// OpenRouterEngine sends requests through OpenRouter's OpenAI-compatible API.
// Grounding maps to the web search plugin. Only image data is accepted;
// other data parts fail with ErrUnsupportedMedia.
type OpenRouterEngine struct {
	client *proxy.Client
}

// NewOpenRouterEngine creates an engine for apiKey. An empty baseURL uses the
// public endpoint.
func NewOpenRouterEngine(apiKey, baseURL string) *OpenRouterEngine {
	if baseURL == "" {
		return &OpenRouterEngine{client: proxy.NewClient(apiKey)}
	}
	return &OpenRouterEngine{client: proxy.NewClientWithBaseURL(apiKey, baseURL)}
}

func (e *OpenRouterEngine) Generate(ctx context.Context, model string, req Request) (string, error) {
	if err := imagesOnly(ProviderOpenRouter, req.Parts); err != nil {
		return "", err
	}

	content := make([]proxy.ContentPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case p.IsImage():
			content = append(content, proxy.ContentPart{
				Type:     "image_url",
				ImageURL: &proxy.ImageURL{URL: "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)},
			})
		case p.Text != "":
			content = append(content, proxy.ContentPart{Type: "text", Text: p.Text})
		}
	}

	cr := proxy.ChatRequest{
		Model:    model,
		Messages: []proxy.ChatMessage{{Role: "user", Content: content}},
	}
	if req.Schema != nil {
		cr.ResponseFormat = &proxy.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &proxy.JSONSchema{Name: "response", Schema: req.Schema},
		}
	}
	if req.Grounding {
		cr.Plugins = []proxy.Plugin{{ID: "web"}}
	}

	resp, err := e.client.Chat(ctx, cr)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}
