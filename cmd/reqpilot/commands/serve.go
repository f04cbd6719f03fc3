package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/reqpilot-go/internal/generate"
	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/provider"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/server"
	"github.com/54b3r/reqpilot-go/internal/tracing"
)

// NewServeCmd constructs the `reqpilot serve` command, which starts the
// HTTP server exposing the analysis pipeline as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ReqPilot HTTP server",
		Long: `Start the ReqPilot HTTP server on localhost.

The server exposes:
  POST /api/analyze    run the full analysis pipeline
  POST /api/search     hybrid retrieval against the knowledge base
  GET  /api/runs       recent run history
  GET  /api/runs/{id}  one run's snapshot and stage audit trail
  GET  /api/health     liveness
  GET  /api/ready      readiness (Qdrant + LLM probes)
  GET  /metrics        Prometheus metrics

Set REQPILOT_API_KEY to require Bearer authentication on /api/* routes.

Examples:
  reqpilot serve
  reqpilot serve --port 9090
  MODEL_PROVIDER=azure reqpilot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", envOrDefault("MODEL_PROVIDER", "ollama")))

			gen, err := generate.NewModelGenerator(&generate.Config{ChatModel: chatModel})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise generator: %w", err)
			}

			_, kstore, closeStore, err := buildKnowledgeStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()

			retrieveCfg := retrieveConfigFromEnv()
			engine, err := retrieval.NewEngine(kstore, retrieveCfg.TopK)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			runStore, closeRuns := openRunStore(log)
			defer closeRuns()

			exec, err := buildExecutor(engine, gen, runStore, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(kstore),
				server.NewLLMPinger(chatModel, envOrDefault("MODEL_PROVIDER", "ollama")),
			}

			serverCfg := &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        pingers,
				APIKey:         os.Getenv("REQPILOT_API_KEY"),
				SemanticWeight: retrieveCfg.SemanticWeight,
				KeywordWeight:  retrieveCfg.KeywordWeight,
			}

			// A disabled run store must arrive as a nil interface, not a
			// nil *SQLiteStore, or the handlers would dereference it.
			var srv *server.Server
			if runStore != nil {
				srv, err = server.New(exec, engine, runStore, serverCfg)
			} else {
				srv, err = server.New(exec, engine, nil, serverCfg)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
