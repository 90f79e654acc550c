package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *mockAnalyzer) {
	t.Helper()
	store := storage.NewStore(storage.NewMemoryBackend())
	an := &mockAnalyzer{}
	return MCPDeps{
		Store:      store,
		Classifier: an,
		Location:   time.UTC,
	}, store, an
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_AnalyzeFeedback(t *testing.T) {
	deps, store, an := newTestMCPDeps(t)
	handler := mcpAnalyzeFeedback(deps)

	req := makeCallToolRequest("analyze_feedback", map[string]interface{}{
		"origin": "text",
		"text":   "Checkout keeps failing",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var saved storage.FeedbackRecord
	if err := json.Unmarshal([]byte(toolText(t, result)), &saved); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if !strings.HasPrefix(saved.ID, "fdb_") {
		t.Errorf("ID = %q, want fdb_ prefix", saved.ID)
	}
	if saved.OwnerID != "" {
		t.Errorf("OwnerID = %q, want empty for MCP callers", saved.OwnerID)
	}
	if an.lastInput.Text != "Checkout keeps failing" {
		t.Errorf("analyzer got %q", an.lastInput.Text)
	}

	recs, err := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(recs))
	}
}

func TestMCPTool_AnalyzeFeedback_Image(t *testing.T) {
	deps, _, an := newTestMCPDeps(t)
	handler := mcpAnalyzeFeedback(deps)

	req := makeCallToolRequest("analyze_feedback", map[string]interface{}{
		"origin":      "image",
		"file_base64": base64.StdEncoding.EncodeToString([]byte("PNG")),
		"mime_type":   "image/png",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if an.lastInput.File == nil || string(an.lastInput.File.Data) != "PNG" || an.lastInput.File.MIMEType != "image/png" {
		t.Errorf("analyzer file = %+v", an.lastInput.File)
	}
}

func TestMCPTool_AnalyzeFeedback_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing origin", map[string]interface{}{"text": "x"}},
		{"unknown origin", map[string]interface{}{"origin": "fax", "text": "x"}},
		{"empty text", map[string]interface{}{"origin": "text"}},
		{"image without file", map[string]interface{}{"origin": "image"}},
		{"bad base64", map[string]interface{}{"origin": "image", "file_base64": "%%%", "mime_type": "image/png"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, store, an := newTestMCPDeps(t)
			result, err := mcpAnalyzeFeedback(deps)(context.Background(), makeCallToolRequest("analyze_feedback", tc.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if an.analyzeCalls != 0 {
				t.Error("analyzer should not be called for invalid input")
			}
			recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
			if len(recs) != 0 {
				t.Errorf("stored %d records, want 0", len(recs))
			}
		})
	}
}

func TestMCPTool_AnalyzeFeedback_FailureStoresNothing(t *testing.T) {
	deps, store, an := newTestMCPDeps(t)
	an.analyzeErr = errors.New("model unavailable")

	result, err := mcpAnalyzeFeedback(deps)(context.Background(), makeCallToolRequest("analyze_feedback", map[string]interface{}{
		"origin": "text", "text": "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if text := toolText(t, result); strings.Contains(text, "model unavailable") {
		t.Errorf("tool error leaks cause: %q", text)
	}
	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 0 {
		t.Errorf("stored %d records after failure, want 0", len(recs))
	}
}

func TestMCPTool_ListFeedback(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	seedFeedback(t, store)
	handler := mcpListFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_feedback", map[string]interface{}{
		"sentiment": "negative",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var recs []storage.FeedbackRecord
	if err := json.Unmarshal([]byte(toolText(t, result)), &recs); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(recs) != 1 || recs[0].Sentiment != storage.SentimentNegative {
		t.Errorf("got %+v, want the one negative record", recs)
	}

	result, err = handler(context.Background(), makeCallToolRequest("list_feedback", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &recs); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d records, want 2", len(recs))
	}
}

func TestMCPTool_Dashboard(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	seedFeedback(t, store)

	result, err := mcpDashboard(deps)(context.Background(), makeCallToolRequest("dashboard", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d aggregate.Dashboard
	if err := json.Unmarshal([]byte(toolText(t, result)), &d); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if d.Stats.TotalFeedbacks != 3 {
		t.Errorf("TotalFeedbacks = %d, want 3", d.Stats.TotalFeedbacks)
	}
	if d.Stats.NegativeCount != 1 || d.Stats.PositiveCount != 1 || d.Stats.NeutralCount != 1 {
		t.Errorf("Stats = %+v", d.Stats)
	}
}

func TestMCPTool_ExecutiveSummary(t *testing.T) {
	deps, store, an := newTestMCPDeps(t)
	seedFeedback(t, store)
	an.summary = "Customers are mostly happy."

	result, err := mcpExecutiveSummary(deps)(context.Background(), makeCallToolRequest("executive_summary", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Customers are mostly happy." {
		t.Errorf("summary = %q", got)
	}
	if an.summaryRecords != 3 {
		t.Errorf("summary saw %d records, want 3", an.summaryRecords)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	ctx := context.Background()

	long := strings.Repeat("é", 300)
	for i := 0; i < 12; i++ {
		if _, err := store.InsertFeedback(ctx, storage.FeedbackRecord{
			OriginalText: long,
			Origin:       storage.OriginText,
			Sentiment:    storage.SentimentNeutral,
			Timestamp:    time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		}); err != nil {
			t.Fatal(err)
		}
	}

	contents, err := mcpResourceRecent(deps)(ctx, makeReadResourceRequest("feedback://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var items []struct {
		Timestamp string `json:"timestamp"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("got %d items, want 10", len(items))
	}
	if items[0].Timestamp != "2024-01-01T00:11:00Z" {
		t.Errorf("first item timestamp = %s, want newest", items[0].Timestamp)
	}
	if n := len([]rune(items[0].Text)); n != 203 {
		t.Errorf("truncated text has %d runes, want 203", n)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)

	analyze := mcpAnalyzeFeedback(deps)
	list := mcpListFeedback(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := analyze(context.Background(), makeCallToolRequest("analyze_feedback", map[string]interface{}{
				"origin": "text", "text": "concurrent feedback",
			}))
			if err != nil {
				errs <- err
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := list(context.Background(), makeCallToolRequest("list_feedback", nil)); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 5 {
		t.Errorf("stored %d records, want 5", len(recs))
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
