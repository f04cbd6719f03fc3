package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
)

// fakeSearch is an EmbeddingSearch stub returning a fixed hit list.
type fakeSearch struct {
	hits []Hit
	err  error
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]Hit, error) {
	return f.hits, f.err
}

func Test_Rank_OAuthScenario(t *testing.T) {
	t.Parallel()
	hits := []Hit{
		{Candidate: Candidate{ID: "A", Keywords: []string{"oauth", "login", "user"}}, Similarity: 0.9},
		{Candidate: Candidate{ID: "B", Keywords: []string{"billing"}}, Similarity: 0.4},
	}

	got := Rank("add OAuth2 login", hits, 2, 0.7, 0.3)

	if len(got) != 2 {
		t.Fatalf("want 2 matches, got %d", len(got))
	}
	if got[0].Candidate.ID != "A" || got[1].Candidate.ID != "B" {
		t.Fatalf("order: want [A B], got [%s %s]", got[0].Candidate.ID, got[1].Candidate.ID)
	}
	if math.Abs(got[0].KeywordScore-2.0/3.0) > 1e-9 {
		t.Errorf("A keyword score = %v, want 2/3", got[0].KeywordScore)
	}
	if got[1].KeywordScore != 0 {
		t.Errorf("B keyword score = %v, want 0", got[1].KeywordScore)
	}
	wantA := 0.7*0.9 + 0.3*(2.0/3.0)
	if math.Abs(got[0].FinalScore-wantA) > 1e-9 {
		t.Errorf("A final score = %v, want %v", got[0].FinalScore, wantA)
	}
	if math.Abs(got[1].FinalScore-0.28) > 1e-9 {
		t.Errorf("B final score = %v, want 0.28", got[1].FinalScore)
	}
	if got[0].Rank != 1 || got[1].Rank != 2 {
		t.Errorf("ranks: got (%d, %d), want (1, 2)", got[0].Rank, got[1].Rank)
	}
}

func Test_Rank_TieBreakByID(t *testing.T) {
	t.Parallel()
	hits := []Hit{
		{Candidate: Candidate{ID: "zeta"}, Similarity: 0.5},
		{Candidate: Candidate{ID: "alpha"}, Similarity: 0.5},
		{Candidate: Candidate{ID: "mid"}, Similarity: 0.5},
	}

	got := Rank("query with no keywords", hits, 3, 1.0, 0.0)

	ids := []string{got[0].Candidate.ID, got[1].Candidate.ID, got[2].Candidate.ID}
	want := []string{"alpha", "mid", "zeta"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("tie-break order mismatch (-want +got):\n%s", diff)
	}
}

func Test_Rank_Deterministic(t *testing.T) {
	t.Parallel()
	hits := []Hit{
		{Candidate: Candidate{ID: "c", Keywords: []string{"cache"}}, Similarity: 0.31},
		{Candidate: Candidate{ID: "a", Keywords: []string{"auth"}}, Similarity: 0.92},
		{Candidate: Candidate{ID: "b", Keywords: []string{"auth", "cache"}}, Similarity: 0.92},
	}

	first := Rank("auth cache eviction", hits, 3, 0.6, 0.4)
	second := Rank("auth cache eviction", hits, 3, 0.6, 0.4)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ranking not deterministic (-first +second):\n%s", diff)
	}
}

func Test_Rank_TruncatesToTopK(t *testing.T) {
	t.Parallel()
	hits := []Hit{
		{Candidate: Candidate{ID: "a"}, Similarity: 0.9},
		{Candidate: Candidate{ID: "b"}, Similarity: 0.8},
		{Candidate: Candidate{ID: "c"}, Similarity: 0.7},
	}

	if got := Rank("q", hits, 2, 1, 0); len(got) != 2 {
		t.Errorf("topK=2: want 2 matches, got %d", len(got))
	}
	// topK larger than the candidate count returns all, still sorted.
	got := Rank("q", hits, 10, 1, 0)
	if len(got) != 3 {
		t.Errorf("topK=10: want 3 matches, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].FinalScore > got[i-1].FinalScore {
			t.Errorf("not sorted: score[%d]=%v > score[%d]=%v", i, got[i].FinalScore, i-1, got[i-1].FinalScore)
		}
	}
}

func Test_Rank_EdgeCases(t *testing.T) {
	t.Parallel()
	if got := Rank("q", nil, 5, 0.7, 0.3); len(got) != 0 {
		t.Errorf("empty candidates: want empty result, got %d", len(got))
	}
	if got := Rank("q", []Hit{{Candidate: Candidate{ID: "a"}}}, 0, 0.7, 0.3); len(got) != 0 {
		t.Errorf("topK=0: want empty result, got %d", len(got))
	}

	// A query that tokenizes to nothing scores 0 on keywords everywhere;
	// semantic similarity alone still orders the result.
	hits := []Hit{
		{Candidate: Candidate{ID: "low", Keywords: []string{"the"}}, Similarity: 0.2},
		{Candidate: Candidate{ID: "high", Keywords: []string{"the"}}, Similarity: 0.8},
	}
	got := Rank("a an the", hits, 2, 0.7, 0.3)
	if len(got) != 2 || got[0].Candidate.ID != "high" {
		t.Errorf("zero-token query: want [high low], got %v", got)
	}
	if got[0].KeywordScore != 0 || got[1].KeywordScore != 0 {
		t.Errorf("zero-token query: keyword scores must be 0")
	}
}

func Test_Engine_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	engine, err := NewEngine(&fakeSearch{hits: []Hit{
		{Candidate: Candidate{ID: "A", Keywords: []string{"oauth", "login", "user"}}, Similarity: 0.9},
		{Candidate: Candidate{ID: "B", Keywords: []string{"billing"}}, Similarity: 0.4},
	}}, 5)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	got, err := engine.Search(ctx, "add OAuth2 login", 2, 0.7, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].Candidate.ID != "A" {
		t.Errorf("want [A B], got %v", got)
	}

	// Negative topK yields an empty result, not an error.
	got, err = engine.Search(ctx, "q", -1, 0.7, 0.3)
	if err != nil || len(got) != 0 {
		t.Errorf("negative topK: want empty result and nil error, got %v, %v", got, err)
	}
}

func Test_Engine_Search_NegativeWeights(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(&fakeSearch{}, 5)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Search(context.Background(), "q", 5, -0.7, 0.3)
	var verr *errdefs.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("want ValidationError for negative weight, got %v", err)
	}
}

func Test_Engine_Search_CollaboratorFailure(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(&fakeSearch{err: errors.New("connection refused")}, 5)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Search(context.Background(), "q", 5, 0.7, 0.3)
	var cerr *errdefs.CollaboratorUnavailableError
	if !errors.As(err, &cerr) {
		t.Errorf("want CollaboratorUnavailableError, got %v", err)
	}
}

func Test_Engine_Search_EmptyCollection(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(&fakeSearch{hits: nil}, 5)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	got, err := engine.Search(context.Background(), "q", 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty collection: want empty result, got %d", len(got))
	}
}
