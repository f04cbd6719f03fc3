// Package knowledge defines the historical work-item model and the
// interfaces for persisting and searching items: vector storage,
// embedding, and the qdrant-backed implementation. The retrieval engine
// never depends on a specific backend — it consumes the store through
// the retrieval.EmbeddingSearch interface this package satisfies.
package knowledge

import (
	"context"
)

// Item is one historical work item in the knowledge base.
type Item struct {
	// ID is the stable work item identifier (e.g. a ticket key).
	ID string `json:"id"`

	// Title is the item's short display text.
	Title string `json:"title"`

	// Description is the full requirement text the embedding is computed
	// from.
	Description string `json:"description"`

	// Keywords is the pre-extracted token set used for keyword scoring.
	// Derived at ingestion time from title + description.
	Keywords []string `json:"keywords,omitempty"`

	// Metadata holds auxiliary display fields (module, recorded effort,
	// quarter shipped, etc.) carried through unchanged. Never used for
	// ranking.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the interface for persisting work items and their
// embeddings. Implementations must be safe to call from multiple
// goroutines.
type Store interface {
	// Upsert stores or updates a batch of items with their pre-computed
	// embeddings. The embeddings slice must be parallel to items.
	Upsert(ctx context.Context, items []Item, embeddings [][]float32) error

	// Delete removes items by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Rebuild atomically replaces the entire collection with the given
	// items. It is mutually exclusive with concurrent searches against
	// the same collection — searches block until the rebuild completes.
	Rebuild(ctx context.Context, items []Item, embeddings [][]float32) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding
	// embeddings. The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
