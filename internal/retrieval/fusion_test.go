package retrieval

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Tokenize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"add OAuth2 login", []string{"add", "login", "oauth"}},
		{"the a an and", []string{}},
		{"Billing, billing; BILLING!", []string{"billing"}},
		{"rate-limit API v2 endpoints", []string{"api", "endpoints", "limit", "rate"}},
		{"x 7 42", []string{}}, // too short / no letters
	}
	for _, tc := range cases {
		got := Tokenize(tc.input)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.input, diff)
		}
	}
}

func Test_KeywordScore(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		query     []string
		candidate []string
		want      float64
	}{
		{"full overlap", []string{"login", "oauth"}, []string{"login", "oauth"}, 1.0},
		{"no overlap", []string{"billing"}, []string{"login"}, 0},
		{"partial", []string{"add", "login", "oauth"}, []string{"login", "oauth", "user"}, 2.0 / 3.0},
		{"empty query", []string{}, []string{"login"}, 0},
		{"empty candidate", []string{"login"}, []string{}, 0},
	}
	for _, tc := range cases {
		got := KeywordScore(tc.query, tc.candidate)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: KeywordScore = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func Test_FuseScores_NoNormalization(t *testing.T) {
	t.Parallel()
	// Weights are applied exactly as supplied even when they do not sum to 1.
	got := FuseScores(0.5, 0.5, 2.0, 2.0)
	if math.Abs(got-2.0) > 1e-9 {
		t.Errorf("FuseScores = %v, want 2.0 (weights must not be normalized)", got)
	}
}
