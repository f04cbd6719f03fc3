package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/state"
	"github.com/54b3r/reqpilot-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeAnalyzer is a test double for the analyzer interface.
type fakeAnalyzer struct {
	// final is returned from Run on success.
	final state.RunState
	// err is returned from Run; nil means success.
	err error
	// gotInitial captures the initial snapshot passed to Run.
	gotInitial state.RunState
}

func (f *fakeAnalyzer) Run(_ context.Context, initial state.RunState) (state.RunState, error) {
	f.gotInitial = initial
	if f.err != nil {
		return initial, f.err
	}
	final := f.final
	if final.RunID == "" {
		final = initial
		final.Status = state.StatusCompleted
	}
	return final, nil
}

// fakeSearcher is a test double for the searcher interface.
type fakeSearcher struct {
	matches []retrieval.RankedMatch
	err     error

	gotQuery    string
	gotTopK     int
	gotSemantic float64
	gotKeyword  float64
}

func (f *fakeSearcher) Search(_ context.Context, queryText string, topK int, semanticWeight, keywordWeight float64) ([]retrieval.RankedMatch, error) {
	f.gotQuery = queryText
	f.gotTopK = topK
	f.gotSemantic = semanticWeight
	f.gotKeyword = keywordWeight
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

// fakeRunStore is a test double for the runReader interface.
type fakeRunStore struct {
	runs      map[string]state.RunState
	summaries []store.RunSummary
	records   []store.StageRecord
	saveErr   error
	saved     []state.RunState
}

func (f *fakeRunStore) GetRun(_ context.Context, runID string) (state.RunState, error) {
	run, ok := f.runs[runID]
	if !ok {
		return state.RunState{}, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunStore) RecentRuns(_ context.Context, n int) ([]store.RunSummary, error) {
	if n < len(f.summaries) {
		return f.summaries[:n], nil
	}
	return f.summaries, nil
}

func (f *fakeRunStore) StageRecords(_ context.Context, _ string) ([]store.StageRecord, error) {
	return f.records, nil
}

func (f *fakeRunStore) SaveRun(_ context.Context, run state.RunState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, run)
	return nil
}

// newTestServer builds a *Server with fakes and an isolated metrics registry.
func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		analyzer: &fakeAnalyzer{},
		searcher: &fakeSearcher{},
		runs:     &fakeRunStore{runs: map[string]state.RunState{}},
		cfg: &Config{
			AnalyzeTimeout:  time.Minute,
			SemanticWeight:  0.7,
			KeywordWeight:   0.3,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
}

// ---------------------------------------------------------------------------
// POST /api/analyze
// ---------------------------------------------------------------------------

func Test_HandleAnalyze_RunsPipelineAndReturnsSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	an := s.analyzer.(*fakeAnalyzer)

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "Add OAuth2 login to the portal"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp state.RunState
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != state.StatusCompleted {
		t.Errorf("status: expected %q, got %q", state.StatusCompleted, resp.Status)
	}
	if resp.RunID == "" {
		t.Error("expected a generated run_id")
	}
	if an.gotInitial.Requirement != "Add OAuth2 login to the portal" {
		t.Errorf("requirement not threaded to pipeline: got %q", an.gotInitial.Requirement)
	}
	if an.gotInitial.Status != state.StatusRunning {
		t.Errorf("initial status: expected %q, got %q", state.StatusRunning, an.gotInitial.Status)
	}
}

func Test_HandleAnalyze_ExplicitRunID(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	an := s.analyzer.(*fakeAnalyzer)

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "migrate billing export", RunID: "run-42"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if an.gotInitial.RunID != "run-42" {
		t.Errorf("run_id: expected %q, got %q", "run-42", an.gotInitial.RunID)
	}
}

func Test_HandleAnalyze_EmptyRequirement(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := postJSON(t, "/api/analyze", analyzeRequest{})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func Test_HandleAnalyze_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func Test_HandleAnalyze_ValidationErrorIs400(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.analyzer = &fakeAnalyzer{err: errdefs.Validationf("initial state has no run_id")}

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "x"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation error, got %d", w.Code)
	}
}

func Test_HandleAnalyze_ExecutorErrorIs500(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.analyzer = &fakeAnalyzer{err: errdefs.Configurationf("no error_handler stage registered")}

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "x"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for configuration error, got %d", w.Code)
	}
}

func Test_HandleAnalyze_PersistsFinalSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	rs := s.runs.(*fakeRunStore)

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "persist me", RunID: "run-7"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(rs.saved) != 1 {
		t.Fatalf("expected 1 saved snapshot, got %d", len(rs.saved))
	}
	if rs.saved[0].RunID != "run-7" {
		t.Errorf("saved run_id: expected %q, got %q", "run-7", rs.saved[0].RunID)
	}
}

func Test_HandleAnalyze_SaveFailureStill200(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.runs = &fakeRunStore{saveErr: errors.New("disk full")}

	req := postJSON(t, "/api/analyze", analyzeRequest{Requirement: "best effort"})
	w := httptest.NewRecorder()

	s.handleAnalyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("persistence failure must not fail the request: got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

func Test_HandleSearch_ReturnsRankedMatches(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.searcher = &fakeSearcher{matches: []retrieval.RankedMatch{
		{
			Candidate:     retrieval.Candidate{ID: "PROJ-101", Title: "SSO integration", Metadata: map[string]string{"module": "auth"}},
			SemanticScore: 0.91,
			KeywordScore:  0.5,
			FinalScore:    0.787,
			Rank:          1,
		},
		{
			Candidate:     retrieval.Candidate{ID: "PROJ-205", Title: "Session hardening"},
			SemanticScore: 0.6,
			KeywordScore:  0.25,
			FinalScore:    0.495,
			Rank:          2,
		},
	}}

	req := postJSON(t, "/api/search", searchRequest{Query: "single sign-on", TopK: 5})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "single sign-on" {
		t.Errorf("query echo: got %q", resp.Query)
	}
	if len(resp.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(resp.Matches))
	}
	if resp.Matches[0].ID != "PROJ-101" || resp.Matches[0].Rank != 1 {
		t.Errorf("first match: got %+v", resp.Matches[0])
	}
	if resp.Matches[0].Metadata["module"] != "auth" {
		t.Errorf("metadata not carried through: got %v", resp.Matches[0].Metadata)
	}
}

func Test_HandleSearch_DefaultWeightsFromConfig(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	se := s.searcher.(*fakeSearcher)

	req := postJSON(t, "/api/search", searchRequest{Query: "billing"})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if se.gotSemantic != 0.7 || se.gotKeyword != 0.3 {
		t.Errorf("expected configured weights (0.7, 0.3), got (%v, %v)", se.gotSemantic, se.gotKeyword)
	}
}

func Test_HandleSearch_WeightOverrides(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	se := s.searcher.(*fakeSearcher)

	sw, kw := 1.0, 0.0
	req := postJSON(t, "/api/search", searchRequest{Query: "billing", SemanticWeight: &sw, KeywordWeight: &kw})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if se.gotSemantic != 1.0 || se.gotKeyword != 0.0 {
		t.Errorf("expected overridden weights (1, 0), got (%v, %v)", se.gotSemantic, se.gotKeyword)
	}
}

func Test_HandleSearch_NegativeTopK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := postJSON(t, "/api/search", searchRequest{Query: "billing", TopK: -3})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative top_k, got %d", w.Code)
	}
}

func Test_HandleSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := postJSON(t, "/api/search", searchRequest{TopK: 5})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", w.Code)
	}
}

func Test_HandleSearch_ValidationErrorIs400(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.searcher = &fakeSearcher{err: errdefs.Validationf("weights must be non-negative, got (-1, 0.3)")}

	req := postJSON(t, "/api/search", searchRequest{Query: "billing"})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func Test_HandleSearch_CollaboratorUnavailableIs502(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.searcher = &fakeSearcher{err: &errdefs.CollaboratorUnavailableError{
		Collaborator: "embedding search",
		Err:          errors.New("connection refused"),
	}}

	req := postJSON(t, "/api/search", searchRequest{Query: "billing"})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the vector store is down, got %d", w.Code)
	}
}

func Test_HandleSearch_EmptyResultIsEmptyArray(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := postJSON(t, "/api/search", searchRequest{Query: "nothing matches this"})
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Matches == nil {
		t.Error("matches must be an empty array, not null")
	}
	if len(resp.Matches) != 0 {
		t.Errorf("expected 0 matches, got %d", len(resp.Matches))
	}
}

// ---------------------------------------------------------------------------
// GET /api/runs
// ---------------------------------------------------------------------------

func Test_HandleRuns_ListsRecent(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.runs = &fakeRunStore{summaries: []store.RunSummary{
		{RunID: "run-3", Requirement: "newest", Status: state.StatusCompleted},
		{RunID: "run-2", Requirement: "older", Status: state.StatusCompletedWithErrors},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w := httptest.NewRecorder()

	s.handleRuns(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp runListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(resp.Runs))
	}
	if resp.Runs[0].RunID != "run-3" {
		t.Errorf("expected newest first, got %q", resp.Runs[0].RunID)
	}
}

func Test_HandleRuns_LimitApplied(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.runs = &fakeRunStore{summaries: []store.RunSummary{
		{RunID: "run-3"}, {RunID: "run-2"}, {RunID: "run-1"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
	w := httptest.NewRecorder()

	s.handleRuns(w, req)

	var resp runListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Errorf("expected limit=2 applied, got %d runs", len(resp.Runs))
	}
}

func Test_HandleRuns_InvalidLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil)
	w := httptest.NewRecorder()

	s.handleRuns(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", w.Code)
	}
}

func Test_HandleRuns_NoStoreIs503(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.runs = nil

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w := httptest.NewRecorder()

	s.handleRuns(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a run store, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/runs/{id}
// ---------------------------------------------------------------------------

func Test_HandleRunByID_ReturnsSnapshotAndTrail(t *testing.T) {
	t.Parallel()

	run := state.New("run-9", "add audit log export", time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	run.Status = state.StatusCompleted

	s := newTestServer()
	s.runs = &fakeRunStore{
		runs: map[string]state.RunState{"run-9": run},
		records: []store.StageRecord{
			{Stage: "intake", DurationMS: 2},
			{Stage: "retrieve", DurationMS: 48, Fields: []string{"matches", "stage_log"}},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-9", nil)
	req.SetPathValue("id", "run-9")
	w := httptest.NewRecorder()

	s.handleRunByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp runDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Run.RunID != "run-9" || resp.Run.Status != state.StatusCompleted {
		t.Errorf("run snapshot: got %+v", resp.Run)
	}
	if len(resp.Stages) != 2 || resp.Stages[1].Stage != "retrieve" {
		t.Errorf("stage trail: got %+v", resp.Stages)
	}
}

func Test_HandleRunByID_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	s.handleRunByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Constructor
// ---------------------------------------------------------------------------

func Test_New_RequiresAnalyzerAndSearcher(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeSearcher{}, nil, nil); err == nil {
		t.Error("expected error for nil analyzer")
	}
	if _, err := New(&fakeAnalyzer{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil searcher")
	}
}

func Test_New_Defaults(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(&fakeAnalyzer{}, &fakeSearcher{}, nil, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.stopRL()

	if s.cfg.Host != "127.0.0.1" || s.cfg.Port != 8080 {
		t.Errorf("addr defaults: got %s:%d", s.cfg.Host, s.cfg.Port)
	}
	if s.cfg.AnalyzeTimeout != 5*time.Minute {
		t.Errorf("analyze timeout default: got %v", s.cfg.AnalyzeTimeout)
	}
	if s.cfg.RateLimit != defaultRateLimit || s.cfg.RateBurst != defaultRateBurst {
		t.Errorf("rate defaults: got %v/%d", s.cfg.RateLimit, s.cfg.RateBurst)
	}
}
