package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedMedia is returned when a backend cannot accept an inline data part.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Part is one piece of a multimodal prompt: either text or inline data.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart returns a text-only Part.
func TextPart(s string) Part { return Part{Text: s} }

// DataPart returns an inline-data Part.
func DataPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// IsImage reports whether the part carries image bytes.
func (p Part) IsImage() bool {
	return len(p.Data) > 0 && strings.HasPrefix(p.MIMEType, "image/")
}

// imagesOnly returns an error for the first data part that is not an image.
func imagesOnly(provider string, parts []Part) error {
	for _, p := range parts {
		if len(p.Data) > 0 && !p.IsImage() {
			return fmt.Errorf("%w %s for %s", ErrUnsupportedMedia, p.MIMEType, provider)
		}
	}
	return nil
}

// Request is a single-turn generation request.
type Request struct {
	Parts []Part

	// Schema, when set, constrains the response to JSON matching it.
	Schema *Schema

	// Grounding asks the backend to consult web search while answering.
	// Backends without search support ignore it.
	Grounding bool
}

// Text joins the text parts of the request with blank lines.
func (r Request) Text() string {
	var texts []string
	for _, p := range r.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// Schema types, in the JSON Schema spelling.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Schema describes the expected JSON output structure. It marshals as a
// JSON Schema fragment, which is what Ollama and OpenRouter accept directly.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
