package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/classify"
	"github.com/apexai/apex/internal/metrics"
	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

const testToken = "test-token-12345"

var (
	adminSession    = session.Session{Role: storage.RoleAdmin, Name: "Apex Admin", UserID: "admin_001"}
	customerSession = session.Session{Role: storage.RoleCustomer, Name: "Cara", UserID: "usr_cara"}
)

// mockAnalyzer is a test double for the classifier.
type mockAnalyzer struct {
	mu             sync.Mutex
	analyzeErr     error
	analyzeCalls   int
	lastInput      classify.Input
	batch          []storage.FeedbackRecord
	batchErr       error
	summary        string
	summaryErr     error
	summaryRecords int
}

func (m *mockAnalyzer) Analyze(_ context.Context, in classify.Input) (storage.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzeCalls++
	m.lastInput = in
	if m.analyzeErr != nil {
		return storage.FeedbackRecord{}, fmt.Errorf("%w: %w", classify.ErrAnalysisFailed, m.analyzeErr)
	}
	text := in.Text
	if text == "" {
		text = "Analyzed " + string(in.Origin) + " content"
	}
	return storage.FeedbackRecord{
		OriginalText: text,
		Origin:       in.Origin,
		Sentiment:    storage.SentimentPositive,
		Score:        0.9,
		Keywords:     []string{"fast"},
		Summary:      "Happy customer",
		Language:     "English",
		Timestamp:    time.Now(),
	}, nil
}

func (m *mockAnalyzer) SimulateBatch(_ context.Context, business string) ([]storage.FeedbackRecord, error) {
	if business == "" {
		return nil, fmt.Errorf("%w: business is empty", classify.ErrInvalidInput)
	}
	return m.batch, m.batchErr
}

func (m *mockAnalyzer) ExecutiveSummary(_ context.Context, recs []storage.FeedbackRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryRecords = len(recs)
	return m.summary, m.summaryErr
}

func seedFeedback(t *testing.T, store *storage.Store) {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	recs := []storage.FeedbackRecord{
		{OwnerID: "usr_cara", OriginalText: "Love it", Origin: storage.OriginText, Sentiment: storage.SentimentPositive, Score: 0.9, Language: "English", Timestamp: base},
		{OwnerID: "usr_dev", OriginalText: "Too slow", Origin: storage.OriginText, Sentiment: storage.SentimentNegative, Score: 0.2, Language: "Hindi", Timestamp: base.Add(time.Hour)},
		{OriginalText: "Okay", Origin: storage.OriginReel, Sentiment: storage.SentimentNeutral, Score: 0.5, Language: "English", Timestamp: base.Add(2 * time.Hour)},
	}
	if _, err := store.InsertManyFeedback(context.Background(), recs); err != nil {
		t.Fatalf("seeding feedback: %v", err)
	}
}

func setupAppHandler(t *testing.T) (http.Handler, *storage.Store, *mockAnalyzer) {
	t.Helper()
	store := storage.NewStore(storage.NewMemoryBackend())
	an := &mockAnalyzer{}

	handler := NewAppHandler(AppDeps{
		Store:      store,
		Classifier: an,
		Sessions:   session.NewResolver(store),
		Token:      testToken,
		Location:   time.UTC,
	})
	return handler, store, an
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func sessionReq(method, url, body string, sess session.Session) *http.Request {
	req := authReq(method, url, body, testToken)
	SetSessionHeaders(req, sess)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Message, body.Error.Type
}

func TestHealth_NoAuth(t *testing.T) {
	h, _, _ := setupAppHandler(t)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetrics_NoAuth(t *testing.T) {
	h, _, _ := setupAppHandler(t)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestBearerAuth_Rejects(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	for _, token := range []string{"", "wrong-token"} {
		rr := serve(h, authReq(http.MethodGet, "/feedback", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
		if _, typ := errorBody(t, rr); typ != "authentication_error" {
			t.Errorf("token %q: error type = %q", token, typ)
		}
	}
}

func TestRequireSession_MissingHeaders(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := serve(h, authReq(http.MethodGet, "/feedback", "", testToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	req := authReq(http.MethodGet, "/feedback", "", testToken)
	req.Header.Set(HeaderUserID, "usr_1")
	req.Header.Set(HeaderRole, "owner")
	if rr := serve(h, req); rr.Code != http.StatusUnauthorized {
		t.Errorf("invalid role: status = %d, want 401", rr.Code)
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	body := `{"kind":"email","contact":"a@x.com","fullName":"Ana","role":"customer"}`
	rr := serve(h, authReq(http.MethodPost, "/auth/signup", body, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var up session.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	if up.Mode != session.ModeAuthenticated || up.Session.UserID == "" {
		t.Errorf("signup outcome = %+v", up)
	}

	// Same contact again is a conflict.
	rr = serve(h, authReq(http.MethodPost, "/auth/signup", body, testToken))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", rr.Code)
	}
	if msg, _ := errorBody(t, rr); msg != "already registered" {
		t.Errorf("duplicate message = %q", msg)
	}

	rr = serve(h, authReq(http.MethodPost, "/auth/signin", `{"kind":"email","contact":"A@X.COM","role":"admin"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var in session.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &in); err != nil {
		t.Fatal(err)
	}
	if in.Session != up.Session {
		t.Errorf("signin session = %+v, want %+v", in.Session, up.Session)
	}
}

func TestSignIn_Demo(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := serve(h, authReq(http.MethodPost, "/auth/signin", `{"kind":"phone","contact":"9876543210","dialCode":"+91","role":"admin"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out session.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Mode != session.ModeDemo || out.Session.UserID != session.DemoAdminID {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSignUp_Validation(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"missing name", `{"kind":"email","contact":"a@x.com","role":"customer"}`, "fullName is required"},
		{"bad role", `{"kind":"email","contact":"a@x.com","fullName":"A","role":"owner"}`, "role must be one of"},
		{"bad contact", `{"kind":"phone","contact":"123","fullName":"A","role":"customer"}`, "invalid contact"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPost, "/auth/signup", tc.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
			if msg, _ := errorBody(t, rr); !strings.Contains(msg, tc.want) {
				t.Errorf("message = %q, want it to contain %q", msg, tc.want)
			}
		})
	}
}

func TestAnalyze_CustomerOwnsRecord(t *testing.T) {
	h, store, _ := setupAppHandler(t)

	rr := serve(h, sessionReq(http.MethodPost, "/feedback/analyze", `{"origin":"text","text":"Great app"}`, customerSession))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var rec storage.FeedbackRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.OwnerID != customerSession.UserID {
		t.Errorf("OwnerID = %q, want %q", rec.OwnerID, customerSession.UserID)
	}
	if !strings.HasPrefix(rec.ID, "fdb_") {
		t.Errorf("ID = %q", rec.ID)
	}

	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{OwnerID: customerSession.UserID})
	if len(recs) != 1 {
		t.Errorf("stored %d records for owner, want 1", len(recs))
	}
}

func TestAnalyze_AdminRecordHasNoOwner(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rr := serve(h, sessionReq(http.MethodPost, "/feedback/analyze", `{"origin":"url","text":"https://example.com/review"}`, adminSession))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var rec storage.FeedbackRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.OwnerID != "" {
		t.Errorf("OwnerID = %q, want empty", rec.OwnerID)
	}
}

func TestAnalyze_File(t *testing.T) {
	h, _, an := setupAppHandler(t)

	body := fmt.Sprintf(`{"origin":"image","file":{"data":%q,"mimeType":"image/jpeg"}}`, base64.StdEncoding.EncodeToString([]byte("JPEGDATA")))
	rr := serve(h, sessionReq(http.MethodPost, "/feedback/analyze", body, customerSession))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if an.lastInput.File == nil || string(an.lastInput.File.Data) != "JPEGDATA" {
		t.Errorf("file passed to analyzer = %+v", an.lastInput.File)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	h, _, an := setupAppHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown origin", `{"origin":"fax","text":"x"}`},
		{"empty text", `{"origin":"text","text":"   "}`},
		{"video without file", `{"origin":"video"}`},
		{"file not base64", `{"origin":"image","file":{"data":"%%%","mimeType":"image/png"}}`},
		{"file without mime", `{"origin":"image","file":{"data":"UE5H"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(h, sessionReq(http.MethodPost, "/feedback/analyze", tc.body, customerSession))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
	if an.analyzeCalls != 0 {
		t.Errorf("analyzer called %d times for invalid input", an.analyzeCalls)
	}
}

func TestAnalyze_FailureIs502AndStoresNothing(t *testing.T) {
	h, store, an := setupAppHandler(t)
	an.analyzeErr = fmt.Errorf("upstream 500")

	rr := serve(h, sessionReq(http.MethodPost, "/feedback/analyze", `{"origin":"text","text":"hello"}`, customerSession))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if msg, _ := errorBody(t, rr); msg != "analysis failed" {
		t.Errorf("message = %q", msg)
	}

	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 0 {
		t.Errorf("stored %d records after failure", len(recs))
	}
}

func TestListFeedback_Scoping(t *testing.T) {
	h, store, _ := setupAppHandler(t)
	seedFeedback(t, store)

	decode := func(rr *httptest.ResponseRecorder) []storage.FeedbackRecord {
		t.Helper()
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
		}
		var recs []storage.FeedbackRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
			t.Fatal(err)
		}
		return recs
	}

	all := decode(serve(h, sessionReq(http.MethodGet, "/feedback", "", adminSession)))
	if len(all) != 3 {
		t.Errorf("admin sees %d records, want 3", len(all))
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Error("records not newest first")
	}

	own := decode(serve(h, sessionReq(http.MethodGet, "/feedback", "", customerSession)))
	if len(own) != 1 || own[0].OwnerID != customerSession.UserID {
		t.Errorf("customer sees %+v", own)
	}

	neg := decode(serve(h, sessionReq(http.MethodGet, "/feedback?sentiment=negative", "", adminSession)))
	if len(neg) != 1 || neg[0].Sentiment != storage.SentimentNegative {
		t.Errorf("negative filter returned %+v", neg)
	}

	limited := decode(serve(h, sessionReq(http.MethodGet, "/feedback?limit=2", "", adminSession)))
	if len(limited) != 2 {
		t.Errorf("limit=2 returned %d", len(limited))
	}

	rr := serve(h, sessionReq(http.MethodGet, "/feedback?sentiment=angry", "", adminSession))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad sentiment status = %d, want 400", rr.Code)
	}
}

func TestDeleteFeedback(t *testing.T) {
	h, store, _ := setupAppHandler(t)
	seedFeedback(t, store)

	rr := serve(h, sessionReq(http.MethodDelete, "/feedback", "", customerSession))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer delete status = %d, want 403", rr.Code)
	}

	// A filtered purge is a no-op.
	rr = serve(h, sessionReq(http.MethodDelete, "/feedback?sentiment=Negative", "", adminSession))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp DeleteResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Deleted != 0 {
		t.Errorf("filtered delete removed %d", resp.Deleted)
	}

	rr = serve(h, sessionReq(http.MethodDelete, "/feedback", "", adminSession))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Deleted != 3 {
		t.Errorf("deleted = %d, want 3", resp.Deleted)
	}
	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 0 {
		t.Errorf("%d records left", len(recs))
	}
}

func TestSimulate(t *testing.T) {
	h, store, an := setupAppHandler(t)
	an.batch = []storage.FeedbackRecord{
		{OriginalText: "a", Origin: storage.OriginText, Sentiment: storage.SentimentPositive, Timestamp: time.Now()},
		{OriginalText: "b", Origin: storage.OriginReel, Sentiment: storage.SentimentNegative, Timestamp: time.Now()},
	}

	rr := serve(h, sessionReq(http.MethodPost, "/feedback/simulate", `{"business":"Cafe"}`, customerSession))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer simulate status = %d, want 403", rr.Code)
	}

	rr = serve(h, sessionReq(http.MethodPost, "/feedback/simulate", `{"business":""}`, adminSession))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty business status = %d, want 400", rr.Code)
	}

	rr = serve(h, sessionReq(http.MethodPost, "/feedback/simulate", `{"business":"Cafe"}`, adminSession))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var saved []storage.FeedbackRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 || saved[0].ID == "" || saved[0].ID == saved[1].ID {
		t.Errorf("saved = %+v", saved)
	}
	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 2 {
		t.Errorf("stored %d, want 2", len(recs))
	}
}

func TestSimulate_FailureIs502(t *testing.T) {
	h, store, an := setupAppHandler(t)
	an.batchErr = fmt.Errorf("%w: no items", classify.ErrAnalysisFailed)

	rr := serve(h, sessionReq(http.MethodPost, "/feedback/simulate", `{"business":"Cafe"}`, adminSession))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	recs, _ := store.FindFeedback(context.Background(), storage.FeedbackFilter{})
	if len(recs) != 0 {
		t.Errorf("stored %d records after failure", len(recs))
	}
}

func TestDashboard_Scoped(t *testing.T) {
	h, store, _ := setupAppHandler(t)
	seedFeedback(t, store)

	rr := serve(h, sessionReq(http.MethodGet, "/dashboard?sentiment=Negative", "", adminSession))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var d aggregate.Dashboard
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Stats.TotalFeedbacks != 3 {
		t.Errorf("admin total = %d, want 3 (sentiment ignored)", d.Stats.TotalFeedbacks)
	}
	if len(d.Trend) != 3 || d.Trend[0].Time != "09:00" {
		t.Errorf("trend = %+v", d.Trend)
	}

	rr = serve(h, sessionReq(http.MethodGet, "/dashboard", "", customerSession))
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Stats.TotalFeedbacks != 1 || d.Stats.PositiveCount != 1 {
		t.Errorf("customer stats = %+v", d.Stats)
	}
	if got := testutil.ToFloat64(metrics.FeedbackRecords); got != 3 {
		t.Errorf("feedback gauge after customer dashboard = %v, want whole collection 3", got)
	}
}

func TestSummary(t *testing.T) {
	h, store, an := setupAppHandler(t)
	seedFeedback(t, store)
	an.summary = "Three paragraphs."

	rr := serve(h, sessionReq(http.MethodPost, "/summary", "", customerSession))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer summary status = %d, want 403", rr.Code)
	}

	rr = serve(h, sessionReq(http.MethodPost, "/summary", "", adminSession))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp SummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary != "Three paragraphs." || resp.Records != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

// brokenStore fails every call the way a lost database connection would.
type brokenStore struct{ err error }

func (b brokenStore) FindFeedback(context.Context, storage.FeedbackFilter) ([]storage.FeedbackRecord, error) {
	return nil, b.err
}

func (b brokenStore) InsertFeedback(context.Context, storage.FeedbackRecord) (storage.FeedbackRecord, error) {
	return storage.FeedbackRecord{}, b.err
}

func (b brokenStore) InsertManyFeedback(context.Context, []storage.FeedbackRecord) ([]storage.FeedbackRecord, error) {
	return nil, b.err
}

func (b brokenStore) DeleteManyFeedback(context.Context, storage.FeedbackFilter) (int, error) {
	return 0, b.err
}

func TestStoreFailure_IsGeneric500(t *testing.T) {
	h := NewAppHandler(AppDeps{
		Store:      brokenStore{err: fmt.Errorf("reading collection apex_db_feedback: dial tcp 10.0.0.7:27017: connection refused")},
		Classifier: &mockAnalyzer{},
		Sessions:   session.NewResolver(storage.NewStore(storage.NewMemoryBackend())),
		Token:      testToken,
		Location:   time.UTC,
	})

	for _, req := range []*http.Request{
		sessionReq(http.MethodGet, "/feedback", "", adminSession),
		sessionReq(http.MethodGet, "/dashboard", "", customerSession),
		sessionReq(http.MethodDelete, "/feedback", "", adminSession),
	} {
		rr := serve(h, req)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: status = %d, want 500", req.Method, req.URL.Path, rr.Code)
			continue
		}
		msg, typ := errorBody(t, rr)
		if msg != "internal error" || typ != "api_error" {
			t.Errorf("%s %s: error = %q/%q, want generic internal error", req.Method, req.URL.Path, msg, typ)
		}
		if strings.Contains(rr.Body.String(), "27017") {
			t.Errorf("%s %s: response leaks store details: %s", req.Method, req.URL.Path, rr.Body.String())
		}
	}
}
