package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/reqpilot-go/internal/audit"
	"github.com/54b3r/reqpilot-go/internal/embedder"
	"github.com/54b3r/reqpilot-go/internal/generate"
	"github.com/54b3r/reqpilot-go/internal/knowledge"
	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/provider"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/stages"
	"github.com/54b3r/reqpilot-go/internal/store"
)

// envOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// buildKnowledgeStore constructs the embedder and the Qdrant-backed
// knowledge store from environment configuration. The returned close
// function releases the gRPC connection.
func buildKnowledgeStore(ctx context.Context, log *slog.Logger) (knowledge.Embedder, *knowledge.QdrantStore, func(), error) {
	if err := embedder.ValidateForKnowledge(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := envOrDefault("EMBEDDING_PROVIDER", envOrDefault("MODEL_PROVIDER", "ollama"))
	host := envOrDefault("QDRANT_HOST", "localhost")
	port := envInt("QDRANT_PORT", 6334)

	kstore, err := knowledge.NewQdrantStore(ctx, emb, &knowledge.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: envOrDefault("QDRANT_COLLECTION", "reqpilot-items"),
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("knowledge store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", envOrDefault("QDRANT_COLLECTION", "reqpilot-items")),
	)

	return emb, kstore, func() { _ = kstore.Close() }, nil
}

// retrieveConfigFromEnv reads the retrieval tunables. YAML config values
// arrive here too — the config loader maps them into these env vars.
func retrieveConfigFromEnv() stages.RetrieveConfig {
	return stages.RetrieveConfig{
		TopK:           envInt("RETRIEVAL_TOP_K", 10),
		SelectTop:      envInt("RETRIEVAL_SELECT_TOP", 3),
		SemanticWeight: envFloat("RETRIEVAL_SEMANTIC_WEIGHT", 0.7),
		KeywordWeight:  envFloat("RETRIEVAL_KEYWORD_WEIGHT", 0.3),
	}
}

// buildGenerator constructs the LLM generation collaborator from the
// provider environment configuration.
func buildGenerator(ctx context.Context, log *slog.Logger) (generate.Generator, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", envOrDefault("MODEL_PROVIDER", "ollama")))

	gen, err := generate.NewModelGenerator(&generate.Config{ChatModel: chatModel})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise generator: %w", err)
	}
	return gen, nil
}

// openRunStore opens the SQLite run history store. REQPILOT_RUNS_DB
// overrides the default path (~/.reqpilot/runs.db); set to "disabled"
// to turn persistence off. A store that cannot be opened degrades to
// nil rather than failing the command.
func openRunStore(log *slog.Logger) (*store.SQLiteStore, func()) {
	dbPath := os.Getenv("REQPILOT_RUNS_DB")
	if dbPath == "disabled" {
		log.Info("run history disabled via REQPILOT_RUNS_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("run history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	rs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("run history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("run history store opened", slog.String("path", dbPath))
	return rs, func() { _ = rs.Close() }
}

// buildExecutor wires the full stage set into a pipeline executor. The
// run store, when present, doubles as the stage audit sink alongside
// the slog sink.
func buildExecutor(engine *retrieval.Engine, gen generate.Generator, runStore *store.SQLiteStore, log *slog.Logger) (*pipeline.Executor, error) {
	stageSet, err := stages.All(engine, gen, retrieveConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to build stages: %w", err)
	}

	var sink pipeline.AuditSink = audit.NewSlogSink(log)
	if runStore != nil {
		sink = audit.NewMultiSink(sink, runStore)
	}

	exec, err := pipeline.New(&pipeline.Config{
		Stages: stageSet,
		Audit:  sink,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build executor: %w", err)
	}
	return exec, nil
}
