package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/reqpilot-go/internal/ingestion"
	"github.com/54b3r/reqpilot-go/internal/logging"
)

// NewIngestCmd constructs the `reqpilot ingest` command, which loads
// historical work items into the Qdrant knowledge base.
func NewIngestCmd() *cobra.Command {
	var files []string
	var rebuild bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest historical work items into the knowledge base",
		Long: `Load historical work items from JSONL files into the Qdrant knowledge
base. Each line is one JSON object with id, title, and description
fields; module, effort, keywords, and metadata are optional.

Keyword token sets are derived from title and description at ingestion
time. Module and kind metadata are inferred from the ticket key and
title when the record does not carry them explicitly.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: reqpilot-items)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

With --rebuild the whole collection is atomically replaced: all items
are embedded first, then the swap happens under the store's write lock,
so concurrent searches never observe a half-built collection.

Examples:
  reqpilot ingest --file items.jsonl
  reqpilot ingest --file 2024.jsonl --file 2025.jsonl
  reqpilot ingest --file items.jsonl --rebuild`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(files) == 0 {
				return fmt.Errorf("ingest: at least one --file is required")
			}

			var records []ingestion.Record
			for _, path := range files {
				recs, err := ingestion.LoadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("loaded records", slog.String("file", path), slog.Int("count", len(recs)))
				records = append(records, recs...)
			}
			if len(records) == 0 {
				return fmt.Errorf("ingest: no records found in %d file(s)", len(files))
			}

			emb, kstore, closeStore, err := buildKnowledgeStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeStore()

			pipeline, err := ingestion.NewPipeline(emb, kstore, &ingestion.Config{BatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			progress := func(msg string) { log.Info(msg) }

			if rebuild {
				log.Info("rebuilding knowledge base", slog.Int("records", len(records)))
				if err := pipeline.Rebuild(ctx, records, progress); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			} else {
				log.Info("starting ingestion", slog.Int("records", len(records)))
				if err := pipeline.Ingest(ctx, records, progress); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			log.Info("ingestion complete", slog.Int("records", len(records)))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "JSONL file of work items to ingest (repeatable)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Atomically replace the whole collection with the loaded items")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items per embedding batch (default: 32)")

	return cmd
}
