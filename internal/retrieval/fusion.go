package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// minTokenLen is the minimum length of a token kept by Tokenize.
// Single-letter fragments carry no signal for keyword overlap.
const minTokenLen = 2

// stopWords is the fixed stop-word set dropped during tokenization.
// Deliberately small: only glue words that appear in virtually every
// requirement text. Domain verbs ("add", "remove", "support") are kept —
// they discriminate between work items.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "with": true,
}

// Tokenize converts free text into a sorted, de-duplicated token set.
// Tokens are lowercase runs of letters — digits and punctuation act as
// separators, so "OAuth2" yields "oauth". Tokens shorter than
// minTokenLen and tokens in the stop-word set are dropped. The result
// is sorted so equal inputs always produce identical slices.
func Tokenize(text string) []string {
	seen := make(map[string]bool)
	for _, raw := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len(raw) < minTokenLen || stopWords[raw] {
			continue
		}
		seen[raw] = true
	}

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// KeywordScore returns |query ∩ candidate| / max(1, |query|), where both
// sides are token sets produced by Tokenize. A query with zero tokens
// scores 0 against every candidate — not an error; the semantic score
// alone still ranks them.
func KeywordScore(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	candidate := make(map[string]bool, len(candidateTokens))
	for _, tok := range candidateTokens {
		candidate[tok] = true
	}

	overlap := 0
	for _, tok := range queryTokens {
		if candidate[tok] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// FuseScores combines a semantic and a keyword score into the final
// ranking score. Weights are applied exactly as supplied — they are not
// required to sum to 1 and are never silently normalized here; weight
// validation is the caller's concern.
func FuseScores(semanticScore, keywordScore, semanticWeight, keywordWeight float64) float64 {
	return semanticWeight*semanticScore + keywordWeight*keywordScore
}
