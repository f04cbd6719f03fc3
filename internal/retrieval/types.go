// Package retrieval implements hybrid ranking of historical work items.
// Candidates arrive from an embedding-search collaborator carrying a
// semantic similarity score; the engine computes a local keyword overlap
// score, fuses the two with caller-supplied weights, and produces a
// deterministic ranking. The collaborator never sees the fused score and
// the engine never recomputes embeddings — the split mirrors the
// VectorStore/Retriever separation used across this codebase.
package retrieval

import (
	"context"
)

// Candidate is a historical work item eligible for ranking.
type Candidate struct {
	// ID is the stable work item identifier. Ties in the fused score are
	// broken by ascending ID so rankings are reproducible.
	ID string
	// Title is the display text shown alongside the match.
	Title string
	// Keywords is the pre-extracted token set for the item. Tokens are
	// normalized again locally, so upstream casing is irrelevant.
	Keywords []string
	// Metadata carries auxiliary numeric/categorical fields (module,
	// recorded effort, etc.). Display only — never used for ranking.
	Metadata map[string]string
}

// Hit is one candidate returned by the embedding-search collaborator.
type Hit struct {
	// Candidate is the matched work item.
	Candidate Candidate
	// Similarity is the semantic similarity in [0,1], normalized by the
	// collaborator. The engine uses it as-is.
	Similarity float64
}

// EmbeddingSearch is the collaborator that resolves a query text into
// semantically similar candidates. Implementations must be safe for
// concurrent use; searches against a collection must be externally
// serialized against a rebuild of that same collection.
type EmbeddingSearch interface {
	// Search returns up to limit candidates with their similarity scores.
	Search(ctx context.Context, queryText string, limit int) ([]Hit, error)
}

// RankedMatch is a candidate with its per-query scores and rank
// position. Created fresh per query and never mutated after ranking.
type RankedMatch struct {
	// Candidate is the matched work item.
	Candidate Candidate
	// SemanticScore is the collaborator-supplied similarity in [0,1].
	SemanticScore float64
	// KeywordScore is the local token overlap ratio in [0,1].
	KeywordScore float64
	// FinalScore is semanticWeight*SemanticScore + keywordWeight*KeywordScore.
	FinalScore float64
	// Rank is the 1-based position in the ranked list.
	Rank int
}
