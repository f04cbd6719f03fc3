package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store and retrieval.EmbeddingSearch backed by a
// Qdrant instance. Query texts are embedded through the configured
// Embedder before the similarity search runs.
//
// Searches and rebuilds on the same store are mutually exclusive:
// Search holds a read lock for its duration and Rebuild holds the write
// lock while it drops and repopulates the collection, so a search never
// observes a half-rebuilt collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// embedder converts query text into the embedding used for search.
	embedder Embedder

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu serializes rebuilds against searches and writes.
	mu sync.RWMutex
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, embedder Embedder, cfg *QdrantConfig) (*QdrantStore, error) {
	if embedder == nil {
		return nil, errdefs.Configurationf("knowledge: embedder is required")
	}
	if cfg.Collection == "" {
		return nil, errdefs.Configurationf("knowledge: collection name is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{client: client, embedder: embedder, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("knowledge: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("knowledge: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// pointID derives a stable Qdrant point UUID from a work item ID. Item
// IDs are free-form ticket keys, not UUIDs, so the point ID is a
// name-based UUID and the original key travels in the payload.
func pointID(itemID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(itemID)).String())
}

// Upsert stores or updates a batch of items with their pre-computed
// embeddings. The embeddings slice must be parallel to items.
func (s *QdrantStore) Upsert(ctx context.Context, items []Item, embeddings [][]float32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upsertLocked(ctx, items, embeddings)
}

func (s *QdrantStore) upsertLocked(ctx context.Context, items []Item, embeddings [][]float32) error {
	if len(items) != len(embeddings) {
		return errdefs.Validationf("knowledge: %d items but %d embeddings", len(items), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for i, item := range items {
		payload := map[string]interface{}{
			"item_id":  item.ID,
			"title":    item.Title,
			"keywords": strings.Join(item.Keywords, " "),
		}
		for k, v := range item.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(item.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("knowledge: upsert failed: %w", err)
	}

	return nil
}

// Search embeds the query text and performs a cosine similarity search,
// returning up to limit hits for the retrieval engine to rank. It
// implements retrieval.EmbeddingSearch.
func (s *QdrantStore) Search(ctx context.Context, queryText string, limit int) ([]retrieval.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vectors, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("knowledge: embedder returned %d vectors for one query", len(vectors))
	}

	max := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &max,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: search failed: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(results))
	for _, r := range results {
		cand := retrieval.Candidate{Metadata: make(map[string]string)}
		if p := r.Payload; p != nil {
			if v, ok := p["item_id"]; ok {
				cand.ID = v.GetStringValue()
			}
			if v, ok := p["title"]; ok {
				cand.Title = v.GetStringValue()
			}
			if v, ok := p["keywords"]; ok {
				cand.Keywords = strings.Fields(v.GetStringValue())
			}
			for k, v := range p {
				if k != "item_id" && k != "title" && k != "keywords" {
					cand.Metadata[k] = v.GetStringValue()
				}
			}
		}
		if cand.ID == "" {
			cand.ID = r.Id.GetUuid()
		}
		hits = append(hits, retrieval.Hit{
			Candidate: cand,
			// Cosine similarity can drift slightly outside [0,1] for
			// unnormalized vectors; clamp so fused scores stay comparable.
			Similarity: math.Min(1, math.Max(0, float64(r.Score))),
		})
	}

	return hits, nil
}

// Delete removes items from the collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, pointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("knowledge: delete failed: %w", err)
	}

	return nil
}

// Rebuild drops the collection and repopulates it from the given items.
// It holds the write lock for the full duration, so concurrent searches
// block until the new collection is fully populated rather than
// observing a partially rebuilt one.
func (s *QdrantStore) Rebuild(ctx context.Context, items []Item, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("knowledge: failed to drop collection %q: %w", s.cfg.Collection, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	return s.upsertLocked(ctx, items, embeddings)
}

// Ping checks connectivity to the Qdrant instance. Used by readiness
// probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("knowledge: qdrant health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
