package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/apexai/apex/internal/engine"
	"github.com/apexai/apex/internal/metrics"
	"github.com/apexai/apex/internal/storage"
)

// ErrAnalysisFailed is returned when the model call fails or its answer
// cannot be decoded. Nothing is stored in that case.
var ErrAnalysisFailed = errors.New("analysis failed")

// ErrInvalidInput is returned when an Input is missing the content its origin needs.
var ErrInvalidInput = errors.New("invalid input")

const (
	batchSize = 5

	// simulatedReelShare is the fraction of simulated items tagged as reels.
	simulatedReelShare = 0.2

	// simulatedSpread is the window simulated timestamps are scattered over.
	simulatedSpread = 10_000_000 * time.Millisecond

	noDataSummary     = "No data available for summary."
	failedSummaryText = "Summary generation failed."
)

// Generator is the slice of engine.Engine the classifier needs.
type Generator interface {
	Generate(ctx context.Context, model string, req engine.Request) (string, error)
}

// PageFetcher returns a plain-text excerpt of a web page.
type PageFetcher interface {
	Excerpt(ctx context.Context, url string) (string, error)
}

// File is an uploaded media payload.
type File struct {
	Data     []byte
	MIMEType string
}

// Input is one piece of feedback to analyze. Text holds the feedback text
// for the text origin, the link for url/reel, and an optional caption for
// media origins.
type Input struct {
	Origin storage.Origin
	Text   string
	File   *File
}

// Validate checks that the input carries what its origin requires.
func (in Input) Validate() error {
	switch in.Origin {
	case storage.OriginText:
		if strings.TrimSpace(in.Text) == "" {
			return fmt.Errorf("%w: text feedback is empty", ErrInvalidInput)
		}
	case storage.OriginURL, storage.OriginReel:
		if strings.TrimSpace(in.Text) == "" {
			return fmt.Errorf("%w: %s origin needs a link", ErrInvalidInput, in.Origin)
		}
	case storage.OriginImage, storage.OriginVideo:
		if in.File == nil || len(in.File.Data) == 0 {
			return fmt.Errorf("%w: %s origin needs a file", ErrInvalidInput, in.Origin)
		}
		if in.File.MIMEType == "" {
			return fmt.Errorf("%w: file MIME type is missing", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidInput, in.Origin)
	}
	return nil
}

// Classifier turns feedback into FeedbackRecords using a generative model.
type Classifier struct {
	gen     Generator
	model   string
	pages   PageFetcher
	timeout time.Duration
	now     func() time.Time
	rand    func() float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPageFetcher enables page excerpts for url feedback.
func WithPageFetcher(p PageFetcher) Option { return func(c *Classifier) { c.pages = p } }

// WithTimeout bounds every model call. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(c *Classifier) { c.timeout = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Classifier) { c.now = now } }

// WithRand replaces the source of uniform [0,1) values used by SimulateBatch.
func WithRand(r func() float64) Option { return func(c *Classifier) { c.rand = r } }

// New creates a Classifier that calls model through gen.
func New(gen Generator, model string, opts ...Option) *Classifier {
	c := &Classifier{
		gen:   gen,
		model: model,
		now:   time.Now,
		rand:  rand.Float64,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Classifier) generate(ctx context.Context, kind, origin string, req engine.Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := c.gen.Generate(ctx, c.model, req)
	metrics.ObserveAnalysis(kind, origin, start, err)
	return out, err
}

// Analyze classifies one piece of feedback. The returned record has no ID or
// owner; those are assigned by the caller when it is stored.
func (c *Classifier) Analyze(ctx context.Context, in Input) (storage.FeedbackRecord, error) {
	if err := in.Validate(); err != nil {
		return storage.FeedbackRecord{}, err
	}

	var excerpt string
	if in.Origin == storage.OriginURL && c.pages != nil {
		var err error
		excerpt, err = c.pages.Excerpt(ctx, strings.TrimSpace(in.Text))
		if err != nil {
			slog.Debug("page excerpt unavailable", "url", in.Text, "error", err)
		}
	}

	raw, err := c.generate(ctx, "analyze", string(in.Origin), engine.Request{
		Parts:     buildAnalysisParts(in, excerpt),
		Schema:    analysisSchema(),
		Grounding: in.Origin.IsRemote(),
	})
	if err != nil {
		slog.Warn("feedback analysis failed", "origin", in.Origin, "error", err)
		return storage.FeedbackRecord{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	a, err := decodeAnalysis(raw)
	if err != nil {
		slog.Warn("failed to decode analysis from model response", "error", err, "response", raw)
		return storage.FeedbackRecord{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	rec := storage.FeedbackRecord{
		OriginalText: in.Text,
		Origin:       in.Origin,
		Timestamp:    c.now().UTC(),
	}
	if rec.OriginalText == "" {
		rec.OriginalText = fmt.Sprintf("Analyzed %s content", in.Origin)
	}
	if in.Origin == storage.OriginImage {
		rec.SourcePreview = "data:" + in.File.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(in.File.Data)
	}
	a.apply(&rec)
	return rec, nil
}

// SimulateBatch asks the model for synthetic reviews of the given kind of
// business and returns up to five analyzed records with past timestamps.
func (c *Classifier) SimulateBatch(ctx context.Context, business string) ([]storage.FeedbackRecord, error) {
	business = strings.TrimSpace(business)
	if business == "" {
		return nil, fmt.Errorf("%w: business type is empty", ErrInvalidInput)
	}

	raw, err := c.generate(ctx, "simulate", "batch", engine.Request{
		Parts:  []engine.Part{engine.TextPart(buildBatchPrompt(business))},
		Schema: batchSchema(),
	})
	if err != nil {
		slog.Warn("batch simulation failed", "business", business, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	items, err := decodeBatch(raw)
	if err != nil {
		slog.Warn("failed to decode batch from model response", "error", err, "response", raw)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: model returned no reviews", ErrAnalysisFailed)
	}
	if len(items) > batchSize {
		items = items[:batchSize]
	}

	now := c.now().UTC()
	out := make([]storage.FeedbackRecord, len(items))
	for i, item := range items {
		origin := storage.OriginText
		if c.rand() >= 1-simulatedReelShare {
			origin = storage.OriginReel
		}
		offset := time.Duration(c.rand() * float64(simulatedSpread))

		rec := storage.FeedbackRecord{
			OriginalText: strings.TrimSpace(string(item.Text)),
			Origin:       origin,
			Timestamp:    now.Add(-offset),
		}
		if rec.OriginalText == "" {
			rec.OriginalText = fmt.Sprintf("Analyzed %s content", origin)
		}
		item.apply(&rec)
		out[i] = rec
	}
	return out, nil
}

// ExecutiveSummary asks the model for a three-paragraph narrative over the
// first records of recs, which callers pass newest first.
func (c *Classifier) ExecutiveSummary(ctx context.Context, recs []storage.FeedbackRecord) (string, error) {
	if len(recs) == 0 {
		return noDataSummary, nil
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, buildDigest(recs))
	out, err := c.generate(ctx, "summary", "digest", engine.Request{
		Parts: []engine.Part{engine.TextPart(prompt)},
	})
	if err != nil {
		slog.Warn("executive summary failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if strings.TrimSpace(out) == "" {
		return failedSummaryText, nil
	}
	return out, nil
}
