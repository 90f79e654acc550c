package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/classify"
	"github.com/apexai/apex/internal/storage"
)

const (
	recentResourceSize = 10
	recentTextRunes    = 200
	defaultListLimit   = 20
	maxListLimit       = 200
)

// MCPDeps holds dependencies for the MCP server. MCP clients act with the
// admin view of the collection: records they create carry no owner.
type MCPDeps struct {
	Store      FeedbackStore
	Classifier Analyzer
	Location   *time.Location
}

// NewMCPServer creates an MCP server with all apex tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := server.NewMCPServer(
		"apex",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("apex: customer feedback analysis. Analyze feedback, list stored records, and read dashboard figures."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_feedback",
			mcp.WithDescription("Classify a piece of customer feedback and store the result."),
			mcp.WithString("origin", mcp.Description("Feedback channel"), mcp.Required(),
				mcp.Enum("text", "url", "reel", "image", "video")),
			mcp.WithString("text", mcp.Description("Feedback text, or the link for url/reel, or a caption for media")),
			mcp.WithString("file_base64", mcp.Description("Base64-encoded media for image/video origins")),
			mcp.WithString("mime_type", mcp.Description("MIME type of file_base64")),
		),
		mcpAnalyzeFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_feedback",
			mcp.WithDescription("List stored feedback records, newest first."),
			mcp.WithString("sentiment", mcp.Description("Only records with this sentiment"),
				mcp.Enum("Positive", "Neutral", "Negative")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 20)")),
		),
		mcpListFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("dashboard",
			mcp.WithDescription("Return headline stats, sentiment split, top languages, score trend, keyword cloud and pain points."),
		),
		mcpDashboard(deps),
	)

	s.AddTool(
		mcp.NewTool("executive_summary",
			mcp.WithDescription("Write a three-paragraph executive summary of the most recent feedback."),
		),
		mcpExecutiveSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"feedback://recent",
			"Recent Feedback",
			mcp.WithResourceDescription("Last 10 feedback records with truncated text"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAnalyzeFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		originArg, err := req.RequireString("origin")
		if err != nil {
			return mcpError("origin is required"), nil
		}
		origin, err := storage.ParseOrigin(originArg)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		in := classify.Input{Origin: origin, Text: req.GetString("text", "")}
		if encoded := req.GetString("file_base64", ""); encoded != "" {
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return mcpError("file_base64 is not valid base64"), nil
			}
			in.File = &classify.File{Data: data, MIMEType: req.GetString("mime_type", "")}
		}
		if err := in.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		rec, err := deps.Classifier.Analyze(ctx, in)
		if err != nil {
			slog.Warn("mcp analyze failed", "error", err)
			return mcpError("analysis failed"), nil
		}
		saved, err := deps.Store.InsertFeedback(ctx, rec)
		if err != nil {
			return mcpStoreError("saving feedback", err), nil
		}
		return mcpJSON(saved)
	}
}

func mcpListFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var f storage.FeedbackFilter
		if s := req.GetString("sentiment", ""); s != "" {
			sentiment, err := storage.ParseSentiment(s)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			f.Sentiment = sentiment
		}

		limit := req.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		recs, err := deps.Store.FindFeedback(ctx, f)
		if err != nil {
			return mcpStoreError("listing feedback", err), nil
		}
		if len(recs) > limit {
			recs = recs[:limit]
		}
		return mcpJSON(recs)
	}
}

func mcpDashboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		recs, err := deps.Store.FindFeedback(ctx, storage.FeedbackFilter{})
		if err != nil {
			return mcpStoreError("reading feedback", err), nil
		}
		return mcpJSON(aggregate.Build(recs, deps.Location))
	}
}

func mcpExecutiveSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		recs, err := deps.Store.FindFeedback(ctx, storage.FeedbackFilter{})
		if err != nil {
			return mcpStoreError("reading feedback", err), nil
		}
		summary, err := deps.Classifier.ExecutiveSummary(ctx, recs)
		if err != nil {
			slog.Warn("mcp summary failed", "error", err)
			return mcpError("summary failed"), nil
		}
		return mcpText(summary), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Store.FindFeedback(ctx, storage.FeedbackFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to get recent feedback: %w", err)
		}
		if len(recs) > recentResourceSize {
			recs = recs[:recentResourceSize]
		}

		type feedbackSummary struct {
			ID        string            `json:"id"`
			Timestamp string            `json:"timestamp"`
			Origin    storage.Origin    `json:"sourceType"`
			Sentiment storage.Sentiment `json:"sentiment"`
			Score     float64           `json:"score"`
			Text      string            `json:"text"`
		}

		summaries := make([]feedbackSummary, len(recs))
		for i, rec := range recs {
			text := rec.OriginalText
			if utf8.RuneCountInString(text) > recentTextRunes {
				runes := []rune(text)
				text = string(runes[:recentTextRunes]) + "..."
			}
			summaries[i] = feedbackSummary{
				ID:        rec.ID,
				Timestamp: rec.Timestamp.Format(time.RFC3339),
				Origin:    rec.Origin,
				Sentiment: rec.Sentiment,
				Score:     rec.Score,
				Text:      text,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal feedback: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// mcpStoreError logs a store failure and returns a generic tool error.
func mcpStoreError(action string, err error) *mcp.CallToolResult {
	slog.Error("mcp store access failed", "action", action, "error", err)
	return mcpError(action + " failed")
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
