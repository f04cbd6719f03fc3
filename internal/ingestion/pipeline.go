// Package ingestion implements the knowledge-base ingestion pipeline.
// It loads historical work items from JSONL files, derives keyword
// token sets, embeds descriptions, and upserts the results into the
// vector store. This pipeline is invoked by the `reqpilot ingest` CLI
// command.
package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/54b3r/reqpilot-go/internal/knowledge"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
)

// maxLineBytes bounds one JSONL record. Work-item descriptions are
// requirement-sized text, not documents; 1 MiB is generous.
const maxLineBytes = 1 << 20

// Record is the JSONL wire form of one historical work item.
type Record struct {
	// ID is the work item identifier (e.g. "PROJ-101"). Required.
	ID string `json:"id"`
	// Title is the item's short display text. Required.
	Title string `json:"title"`
	// Description is the full requirement text. Required — it is what
	// gets embedded.
	Description string `json:"description"`
	// Module optionally names the system module the item touched.
	// Inferred from the ID and title when absent.
	Module string `json:"module,omitempty"`
	// Effort optionally records the actual effort spent (e.g. "8d").
	Effort string `json:"effort,omitempty"`
	// Keywords optionally supplies extra keyword tokens beyond those
	// derived from title and description.
	Keywords []string `json:"keywords,omitempty"`
	// Metadata carries any further display fields unchanged.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of items embedded and upserted per batch.
	// Defaults to 32 if zero.
	BatchSize int

	// EmbedTimeout bounds one embedding batch call. Defaults to 60s if zero.
	EmbedTimeout time.Duration
}

// Pipeline orchestrates the load → tokenize → embed → upsert flow for a
// set of historical work items.
type Pipeline struct {
	// embedder converts item descriptions into dense vector embeddings.
	embedder knowledge.Embedder

	// store persists the embedded items.
	store knowledge.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder knowledge.Embedder, store knowledge.Store, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// LoadFile reads a JSONL file of work-item records, one JSON object per
// line. Blank lines are skipped; a malformed line fails the whole load
// with its line number so the input can be fixed rather than silently
// part-ingested.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	seen := make(map[string]int)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("ingestion: %s line %d: %w", path, lineNo, err)
		}
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("ingestion: %s line %d: %w", path, lineNo, err)
		}
		if prev, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("ingestion: %s line %d: duplicate id %q (first seen on line %d)", path, lineNo, rec.ID, prev)
		}
		seen[rec.ID] = lineNo

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}

	return records, nil
}

// validateRecord checks the required fields of one JSONL record.
func validateRecord(rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("record has no id")
	}
	if strings.TrimSpace(rec.Title) == "" {
		return fmt.Errorf("record %q has no title", rec.ID)
	}
	if strings.TrimSpace(rec.Description) == "" {
		return fmt.Errorf("record %q has no description", rec.ID)
	}
	return nil
}

// ToItem converts a wire record into the knowledge-base item form.
// Keyword tokens are derived from the title, description, and any
// explicit keywords; module and kind metadata fall back to inference
// when the record does not carry them.
func ToItem(rec Record) knowledge.Item {
	inferred := InferMetadata(rec.ID, rec.Title)

	module := rec.Module
	if module == "" {
		module = inferred.Module
	}

	meta := make(map[string]string, len(rec.Metadata)+3)
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	meta["module"] = module
	meta["kind"] = inferred.Kind
	if rec.Effort != "" {
		meta["effort"] = rec.Effort
	}

	keywordSource := rec.Title + " " + rec.Description
	if len(rec.Keywords) > 0 {
		keywordSource += " " + strings.Join(rec.Keywords, " ")
	}

	return knowledge.Item{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Keywords:    retrieval.Tokenize(keywordSource),
		Metadata:    meta,
	}
}

// Ingest embeds and upserts all provided records in batches. It
// processes batches sequentially and returns the first error
// encountered. Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, records []Record, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	total := 0
	for start := 0; start < len(records); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(records))
		batch := records[start:end]

		items, embeddings, err := p.embedBatch(ctx, batch)
		if err != nil {
			return err
		}

		if err := p.store.Upsert(ctx, items, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert failed for batch starting at %q: %w", batch[0].ID, err)
		}

		total += len(items)
		progress(fmt.Sprintf("ingested %d/%d items", total, len(records)))
	}

	return nil
}

// Rebuild atomically replaces the whole knowledge base with the
// provided records. All records are embedded first so the collection
// swap holds the store's write lock for as short a time as possible.
func (p *Pipeline) Rebuild(ctx context.Context, records []Record, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	items := make([]knowledge.Item, 0, len(records))
	embeddings := make([][]float32, 0, len(records))

	for start := 0; start < len(records); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(records))

		batchItems, batchEmbeddings, err := p.embedBatch(ctx, records[start:end])
		if err != nil {
			return err
		}
		items = append(items, batchItems...)
		embeddings = append(embeddings, batchEmbeddings...)

		progress(fmt.Sprintf("embedded %d/%d items", len(items), len(records)))
	}

	if err := p.store.Rebuild(ctx, items, embeddings); err != nil {
		return fmt.Errorf("ingestion: rebuild failed: %w", err)
	}
	progress(fmt.Sprintf("rebuilt knowledge base with %d items", len(items)))

	return nil
}

// embedBatch converts one batch of records into items and their
// embeddings. Descriptions are what get embedded — the title is
// prepended so short descriptions still carry the item's subject.
func (p *Pipeline) embedBatch(ctx context.Context, batch []Record) ([]knowledge.Item, [][]float32, error) {
	texts := make([]string, len(batch))
	items := make([]knowledge.Item, len(batch))
	for i, rec := range batch {
		items[i] = ToItem(rec)
		texts[i] = rec.Title + "\n" + rec.Description
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	embeddings, err := p.embedder.Embed(embedCtx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("ingestion: embedding failed for batch starting at %q: %w", batch[0].ID, err)
	}
	if len(embeddings) != len(batch) {
		return nil, nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d items", len(embeddings), len(batch))
	}

	return items, embeddings, nil
}
