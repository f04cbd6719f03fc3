// Package server implements the HTTP server that exposes the analysis
// pipeline, hybrid retrieval search, and persisted run history via a
// REST API. The server is started by the `reqpilot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/state"
	"github.com/54b3r/reqpilot-go/internal/store"
)

// defaultRunListLimit is the number of runs returned by GET /api/runs
// when no explicit limit query parameter is supplied.
const defaultRunListLimit = 20

// New constructs a Server from the pipeline executor, retrieval engine,
// run store, and config. The run store may be nil, in which case the
// /api/runs endpoints return 503 and analyze results are not persisted.
func New(an analyzer, se searcher, runs runReader, cfg *Config) (*Server, error) {
	if an == nil {
		return nil, fmt.Errorf("server: analyzer must not be nil")
	}
	if se == nil {
		return nil, fmt.Errorf("server: searcher must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast a full pipeline run.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AnalyzeTimeout == 0 {
		cfg.AnalyzeTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		analyzer: an,
		searcher: se,
		runs:     runs,
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		pingers:  cfg.Pingers,
	}

	if cfg.APIKey == "" {
		s.log.Warn("API authentication disabled — no API key configured")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Protected routes carry auth and per-IP rate limiting; health,
	// readiness, and metrics stay open for probes and scrapers.
	protected := func(h http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/analyze", protected(http.HandlerFunc(s.handleAnalyze)))
	mux.Handle("POST /api/search", protected(http.HandlerFunc(s.handleSearch)))
	mux.Handle("GET /api/runs", protected(http.HandlerFunc(s.handleRuns)))
	mux.Handle("GET /api/runs/{id}", protected(http.HandlerFunc(s.handleRunByID)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.metricsMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAnalyze handles POST /api/analyze. It runs the full pipeline
// synchronously and returns the final run snapshot. A stage failure is
// not an HTTP error — the run completes with status completed_with_errors
// and is still returned as 200.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Requirement == "" {
		writeError(w, http.StatusBadRequest, "requirement is required")
		return
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnalyzeTimeout)
	defer cancel()

	start := time.Now()
	final, err := s.analyzer.Run(ctx, state.New(runID, req.Requirement, time.Now().UTC()))
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.runsTotal.WithLabelValues("rejected").Inc()
		var verr *errdefs.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error("pipeline run failed",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}

	s.metrics.runsTotal.WithLabelValues(string(final.Status)).Inc()
	s.metrics.runDurationSeconds.WithLabelValues(string(final.Status)).Observe(elapsed.Seconds())

	if s.runs != nil {
		if saveErr := s.runs.SaveRun(r.Context(), final); saveErr != nil {
			// Persistence is best-effort here — the caller still gets the result.
			log.Warn("failed to persist run snapshot",
				slog.String("run_id", final.RunID),
				slog.Any("error", saveErr),
			)
		}
	}

	writeJSON(w, http.StatusOK, final)
}

// handleSearch handles POST /api/search. It ranks knowledge-base
// candidates against the query without starting a pipeline run.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	semantic := s.cfg.SemanticWeight
	if req.SemanticWeight != nil {
		semantic = *req.SemanticWeight
	}
	keyword := s.cfg.KeywordWeight
	if req.KeywordWeight != nil {
		keyword = *req.KeywordWeight
	}

	start := time.Now()
	ranked, err := s.searcher.Search(r.Context(), req.Query, req.TopK, semantic, keyword)
	if err != nil {
		s.metrics.searchRequestsTotal.WithLabelValues("error").Inc()
		var verr *errdefs.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var cerr *errdefs.CollaboratorUnavailableError
		if errors.As(err, &cerr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.metrics.searchRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.searchDurationSeconds.Observe(time.Since(start).Seconds())

	resp := searchResponse{Query: req.Query, Matches: make([]searchMatch, 0, len(ranked))}
	for _, m := range ranked {
		resp.Matches = append(resp.Matches, searchMatch{
			ID:            m.Candidate.ID,
			Title:         m.Candidate.Title,
			SemanticScore: m.SemanticScore,
			KeywordScore:  m.KeywordScore,
			FinalScore:    m.FinalScore,
			Rank:          m.Rank,
			Metadata:      m.Candidate.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRuns handles GET /api/runs, returning recent run summaries
// newest first. The optional ?limit= parameter caps the list size.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("list runs failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runListResponse{Runs: runs})
}

// handleRunByID handles GET /api/runs/{id}, returning the persisted
// final snapshot plus the per-stage audit trail.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	runID := r.PathValue("id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", runID))
			return
		}
		logging.FromContext(r.Context()).Error("get run failed",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	stages, err := s.runs.StageRecords(r.Context(), runID)
	if err != nil {
		// The snapshot is the primary payload; a missing trail is not fatal.
		logging.FromContext(r.Context()).Warn("stage records unavailable",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
	writeJSON(w, http.StatusOK, runDetailResponse{Run: run, Stages: stages})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
