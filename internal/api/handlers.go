package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/classify"
	"github.com/apexai/apex/internal/metrics"
	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxAnalyzeBodySize = 20 << 20 // 20MB, base64 media included

// FeedbackStore is the slice of storage.Store the API needs.
type FeedbackStore interface {
	FindFeedback(ctx context.Context, f storage.FeedbackFilter) ([]storage.FeedbackRecord, error)
	InsertFeedback(ctx context.Context, rec storage.FeedbackRecord) (storage.FeedbackRecord, error)
	InsertManyFeedback(ctx context.Context, recs []storage.FeedbackRecord) ([]storage.FeedbackRecord, error)
	DeleteManyFeedback(ctx context.Context, f storage.FeedbackFilter) (int, error)
}

// Analyzer is the slice of classify.Classifier the API needs.
type Analyzer interface {
	Analyze(ctx context.Context, in classify.Input) (storage.FeedbackRecord, error)
	SimulateBatch(ctx context.Context, business string) ([]storage.FeedbackRecord, error)
	ExecutiveSummary(ctx context.Context, recs []storage.FeedbackRecord) (string, error)
}

// Authenticator resolves sign-up and sign-in requests.
type Authenticator interface {
	SignUp(ctx context.Context, req session.SignUpRequest) (session.Outcome, error)
	SignIn(ctx context.Context, req session.SignInRequest) (session.Outcome, error)
}

type AppDeps struct {
	Store      FeedbackStore
	Classifier Analyzer
	Sessions   Authenticator
	Token      string
	Location   *time.Location // for trend labels; nil means local time
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type AnalyzeRequest struct {
	Origin string       `json:"origin" validate:"required,oneof=text image video url reel"`
	Text   string       `json:"text,omitempty" validate:"max=20000"`
	File   *FilePayload `json:"file,omitempty"`
}

type FilePayload struct {
	Data     string `json:"data" validate:"required,base64"`
	MIMEType string `json:"mimeType" validate:"required"`
}

type SimulateRequest struct {
	Business string `json:"business" validate:"required,max=200"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
	Records int    `json:"records"`
}

type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/auth/signup", handleSignUp(deps))
		r.Post("/auth/signin", handleSignIn(deps))

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)

			r.Post("/feedback/analyze", handleAnalyze(deps))
			r.Get("/feedback", handleListFeedback(deps))
			r.Get("/dashboard", handleDashboard(deps))

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Delete("/feedback", handleDeleteFeedback(deps))
				r.Post("/feedback/simulate", handleSimulate(deps))
				r.Post("/summary", handleSummary(deps))
			})
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// decodeBody reads a JSON body into v and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		serviceError(w, err)
		return false
	}
	return true
}

func handleSignUp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.SignUpRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		out, err := deps.Sessions.SignUp(r.Context(), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleSignIn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.SignInRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		out, err := deps.Sessions.SignIn(r.Context(), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if !decodeBody(w, r, maxAnalyzeBodySize, &req) {
			return
		}

		in, err := req.toInput()
		if err != nil {
			serviceError(w, err)
			return
		}

		rec, err := deps.Classifier.Analyze(r.Context(), in)
		if err != nil {
			slog.Warn("analysis failed", "origin", in.Origin, "error", err)
			serviceError(w, err)
			return
		}

		sess, _ := SessionFrom(r.Context())
		if !sess.IsAdmin() {
			rec.OwnerID = sess.UserID
		}

		saved, err := deps.Store.InsertFeedback(r.Context(), rec)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func (req AnalyzeRequest) toInput() (classify.Input, error) {
	origin, err := storage.ParseOrigin(req.Origin)
	if err != nil {
		return classify.Input{}, err
	}
	in := classify.Input{Origin: origin, Text: req.Text}
	if req.File != nil {
		if err := validate.Struct(req.File); err != nil {
			return classify.Input{}, err
		}
		data, err := base64.StdEncoding.DecodeString(req.File.Data)
		if err != nil {
			return classify.Input{}, err
		}
		in.File = &classify.File{Data: data, MIMEType: req.File.MIMEType}
	}
	if err := in.Validate(); err != nil {
		return classify.Input{}, err
	}
	return in, nil
}

// scopedFilter limits customers to their own records.
func scopedFilter(r *http.Request) (storage.FeedbackFilter, bool) {
	sess, _ := SessionFrom(r.Context())
	var f storage.FeedbackFilter
	if !sess.IsAdmin() {
		f.OwnerID = sess.UserID
	}
	if s := r.URL.Query().Get("sentiment"); s != "" {
		sentiment, err := storage.ParseSentiment(s)
		if err != nil {
			return f, false
		}
		f.Sentiment = sentiment
	}
	return f, true
}

func handleListFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := scopedFilter(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sentiment must be one of Positive, Neutral, Negative")
			return
		}

		recs, err := deps.Store.FindFeedback(r.Context(), f)
		if err != nil {
			serviceError(w, err)
			return
		}
		if limit := parseIntParam(r, "limit", 0, 1000); limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleDeleteFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := scopedFilter(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sentiment must be one of Positive, Neutral, Negative")
			return
		}

		n, err := deps.Store.DeleteManyFeedback(r.Context(), f)
		if err != nil {
			serviceError(w, err)
			return
		}
		slog.Info("feedback purged", "deleted", n, "filtered", !f.IsEmpty())
		writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
	}
}

func handleSimulate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimulateRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		recs, err := deps.Classifier.SimulateBatch(r.Context(), req.Business)
		if err != nil {
			serviceError(w, err)
			return
		}
		saved, err := deps.Store.InsertManyFeedback(r.Context(), recs)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleDashboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, _ := scopedFilter(r)
		f.Sentiment = ""

		recs, err := deps.Store.FindFeedback(r.Context(), f)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, aggregate.Build(recs, deps.Location))
	}
}

func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.FindFeedback(r.Context(), storage.FeedbackFilter{})
		if err != nil {
			serviceError(w, err)
			return
		}

		text, err := deps.Classifier.ExecutiveSummary(r.Context(), recs)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SummaryResponse{Summary: text, Records: len(recs)})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
