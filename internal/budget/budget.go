// Package budget provides token budget estimation and prompt trimming for
// the generation stages. Because multiple LLM backends with different
// tokenizers are supported, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B, GPT-3.5)
	// while leaving room for the output. Override via Config.MaxContextTokens.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimMatches removes match context blocks from the tail until the total
// estimated token count of fixed + blocks fits within maxTokens. fixed
// contains messages that must not be trimmed (system prompt, requirement
// text, prior stage outputs). blocks contains the rendered match contexts in
// rank order, so trimming from the tail drops the weakest matches first.
//
// Returns the trimmed blocks slice. If even zero blocks exceed the budget,
// the empty slice is returned (fixed messages are never dropped here —
// callers should warn separately if fixed alone exceeds the budget).
func TrimMatches(fixed []*schema.Message, blocks []string, maxTokens int) []string {
	if len(blocks) == 0 {
		return blocks
	}

	fixedTokens := EstimateMessages(fixed)

	blockTokens := 0
	for _, b := range blocks {
		blockTokens += Estimate(b)
	}

	// Ranked lists are typically ≤10 blocks; a linear scan dropping from the
	// tail is clear and correct.
	for len(blocks) > 0 && fixedTokens+blockTokens > maxTokens {
		blockTokens -= Estimate(blocks[len(blocks)-1])
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}
