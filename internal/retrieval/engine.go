package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
)

// overfetchFactor is how many times topK candidates are requested from
// the embedding-search collaborator. Keyword fusion can promote items
// the vector search ranked below the cut, so the engine ranks a wider
// pool before truncating.
const overfetchFactor = 4

// Engine ranks candidates by fusing semantic similarity with keyword
// overlap. It is safe for concurrent use; one long-lived instance is
// shared across concurrent runs.
type Engine struct {
	// search is the embedding-search collaborator.
	search EmbeddingSearch

	// defaultTopK is the result count used when a caller passes 0.
	defaultTopK int
}

// NewEngine constructs an Engine around the given collaborator.
// defaultTopK sets the fallback result count for Search calls with topK=0.
func NewEngine(search EmbeddingSearch, defaultTopK int) (*Engine, error) {
	if search == nil {
		return nil, fmt.Errorf("retrieval: embedding search must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Engine{search: search, defaultTopK: defaultTopK}, nil
}

// Search resolves queryText against the collaborator and returns at most
// topK matches ranked by fused score. topK=0 uses the engine default;
// negative topK yields an empty result. Negative weights are a caller
// error ([errdefs.ValidationError]); weights are otherwise applied as
// supplied, without normalization.
func (e *Engine) Search(ctx context.Context, queryText string, topK int, semanticWeight, keywordWeight float64) ([]RankedMatch, error) {
	if semanticWeight < 0 || keywordWeight < 0 {
		return nil, errdefs.Validationf("weights must be non-negative, got (%v, %v)", semanticWeight, keywordWeight)
	}
	if topK == 0 {
		topK = e.defaultTopK
	}
	if topK < 0 {
		return nil, nil
	}

	hits, err := e.search.Search(ctx, queryText, topK*overfetchFactor)
	if err != nil {
		return nil, &errdefs.CollaboratorUnavailableError{Collaborator: "embedding search", Err: err}
	}

	return Rank(queryText, hits, topK, semanticWeight, keywordWeight), nil
}

// Rank is the pure ranking core: it scores hits against queryText,
// sorts descending by fused score with ties broken by ascending
// candidate ID, and truncates to topK. Identical inputs always produce
// an identical ordered list. An empty hit list or topK <= 0 yields an
// empty result, never an error.
func Rank(queryText string, hits []Hit, topK int, semanticWeight, keywordWeight float64) []RankedMatch {
	if len(hits) == 0 || topK <= 0 {
		return []RankedMatch{}
	}

	queryTokens := Tokenize(queryText)

	matches := make([]RankedMatch, 0, len(hits))
	for _, h := range hits {
		candidateTokens := Tokenize(strings.Join(h.Candidate.Keywords, " "))
		kw := KeywordScore(queryTokens, candidateTokens)
		matches = append(matches, RankedMatch{
			Candidate:     h.Candidate,
			SemanticScore: h.Similarity,
			KeywordScore:  kw,
			FinalScore:    FuseScores(h.Similarity, kw, semanticWeight, keywordWeight),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FinalScore != matches[j].FinalScore {
			return matches[i].FinalScore > matches[j].FinalScore
		}
		return matches[i].Candidate.ID < matches[j].Candidate.ID
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches
}
