package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/state"
	"github.com/54b3r/reqpilot-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for a full pipeline run on POST /api/analyze.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AnalyzeTimeout bounds one pipeline run triggered via POST /api/analyze.
	// Defaults to 5 minutes if zero.
	AnalyzeTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// SemanticWeight is the default embedding-similarity weight for
	// POST /api/search requests that do not supply one.
	SemanticWeight float64
	// KeywordWeight is the default token-overlap weight for POST /api/search
	// requests that do not supply one.
	KeywordWeight float64
	// MetricsRegistry receives all server metric registrations.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// analyzer is the interface handleAnalyze calls to execute a pipeline run.
// *pipeline.Executor satisfies it; tests inject a fake.
type analyzer interface {
	// Run executes the pipeline against the initial snapshot and returns
	// the final merged state.
	Run(ctx context.Context, initial state.RunState) (state.RunState, error)
}

// searcher is the interface handleSearch calls to rank knowledge-base
// candidates. *retrieval.Engine satisfies it; tests inject a fake.
type searcher interface {
	Search(ctx context.Context, queryText string, topK int, semanticWeight, keywordWeight float64) ([]retrieval.RankedMatch, error)
}

// runReader is the read side of the run store used by the /api/runs
// handlers. *store.SQLiteStore satisfies it.
type runReader interface {
	GetRun(ctx context.Context, runID string) (state.RunState, error)
	RecentRuns(ctx context.Context, n int) ([]store.RunSummary, error)
	StageRecords(ctx context.Context, runID string) ([]store.StageRecord, error)
	SaveRun(ctx context.Context, run state.RunState) error
}

// Server is the HTTP server that exposes the analysis pipeline,
// retrieval search, and run history over a REST API.
type Server struct {
	// analyzer executes pipeline runs for POST /api/analyze.
	analyzer analyzer
	// searcher ranks knowledge-base candidates for POST /api/search.
	searcher searcher
	// runs is the persistent run store backing /api/runs and snapshot saves.
	runs runReader
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds all Prometheus instruments owned by this server.
	metrics *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// analyzeRequest is the JSON body for POST /api/analyze.
type analyzeRequest struct {
	// Requirement is the raw free-text requirement to analyse.
	Requirement string `json:"requirement"`
	// RunID optionally fixes the run identifier. Generated when empty.
	RunID string `json:"run_id,omitempty"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the free-text query to rank candidates against.
	Query string `json:"query"`
	// TopK is the maximum number of matches to return. 0 uses the engine
	// default; negative values are rejected with 400.
	TopK int `json:"top_k,omitempty"`
	// SemanticWeight overrides the configured embedding-similarity weight
	// when non-nil.
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	// KeywordWeight overrides the configured token-overlap weight when non-nil.
	KeywordWeight *float64 `json:"keyword_weight,omitempty"`
}

// searchMatch is one ranked result in a POST /api/search response.
type searchMatch struct {
	// ID is the work item identifier.
	ID string `json:"id"`
	// Title is the work item display text.
	Title string `json:"title"`
	// SemanticScore is the embedding similarity component in [0,1].
	SemanticScore float64 `json:"semantic_score"`
	// KeywordScore is the token overlap component in [0,1].
	KeywordScore float64 `json:"keyword_score"`
	// FinalScore is the fused ranking score.
	FinalScore float64 `json:"final_score"`
	// Rank is the 1-based position in the ranked list.
	Rank int `json:"rank"`
	// Metadata carries auxiliary display fields from the source item.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Query echoes the query text that was ranked.
	Query string `json:"query"`
	// Matches is the ranked result list, best first.
	Matches []searchMatch `json:"matches"`
}

// runListResponse is the JSON response for GET /api/runs.
type runListResponse struct {
	// Runs is the recent-runs list, newest first.
	Runs []store.RunSummary `json:"runs"`
}

// runDetailResponse is the JSON response for GET /api/runs/{id}.
type runDetailResponse struct {
	// Run is the persisted final snapshot of the run.
	Run state.RunState `json:"run"`
	// Stages is the per-stage audit trail in execution order.
	Stages []store.StageRecord `json:"stages,omitempty"`
}

// errorResponse is the JSON body for all non-2xx API responses.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}
