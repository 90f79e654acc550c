package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestToGenaiSchema(t *testing.T) {
	s := &Schema{
		Type: TypeArray,
		Items: &Schema{
			Type:     TypeObject,
			Required: []string{"sentiment"},
			Properties: map[string]*Schema{
				"sentiment": {Type: TypeString, Enum: []string{"Positive", "Negative", "Neutral"}},
				"keywords":  {Type: TypeArray, Items: &Schema{Type: TypeString}},
				"score":     {Type: TypeNumber},
			},
		},
	}

	g := toGenaiSchema(s)
	if g.Type != genai.TypeArray {
		t.Fatalf("type = %v, want ARRAY", g.Type)
	}
	item := g.Items
	if item == nil || item.Type != genai.TypeObject {
		t.Fatalf("items = %+v, want OBJECT", item)
	}
	if item.Properties["score"].Type != genai.TypeNumber {
		t.Errorf("score type = %v", item.Properties["score"].Type)
	}
	if item.Properties["keywords"].Items.Type != genai.TypeString {
		t.Errorf("keywords items type = %v", item.Properties["keywords"].Items.Type)
	}
	if len(item.Properties["sentiment"].Enum) != 3 {
		t.Errorf("enum lost: %v", item.Properties["sentiment"].Enum)
	}
	if toGenaiSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestNewGeminiEngine_RequiresKey(t *testing.T) {
	if _, err := NewGeminiEngine(context.Background(), "", ""); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestGeminiEngine_Generate(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"sentiment\":\"Neutral\"}"}]}}]}`)
	}))
	defer srv.Close()

	e, err := NewGeminiEngine(context.Background(), "test-key", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}
	out, err := e.Generate(context.Background(), "gemini-test", Request{
		Parts:     []Part{TextPart("Analyze"), DataPart([]byte("PNG"), "image/png")},
		Schema:    &Schema{Type: TypeObject, Properties: map[string]*Schema{"sentiment": {Type: TypeString}}},
		Grounding: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"sentiment":"Neutral"}` {
		t.Errorf("got %q", out)
	}

	if !strings.HasSuffix(path, "gemini-test:generateContent") {
		t.Errorf("path = %q", path)
	}
	gc, _ := body["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", body["generationConfig"])
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools = %v, want google search", body["tools"])
	}
}

func TestGeminiEngine_EmptyRequest(t *testing.T) {
	e, err := NewGeminiEngine(context.Background(), "test-key", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}
	if _, err := e.Generate(context.Background(), "m", Request{}); err == nil {
		t.Error("expected error for request without parts")
	}
}
