package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	got := EstimateMessages(msgs)
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	// Two messages: 14
	if got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimMatches_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	blocks := []string{"[PROJ-1] OAuth login", "[PROJ-2] Billing export"}
	got := TrimMatches(fixed, blocks, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 blocks, got %d", len(got))
	}
}

func Test_TrimMatches_DropsLowestRankedFirst(t *testing.T) {
	t.Parallel()
	// Each block is 8 chars = 2 tokens. Fixed is empty.
	// Budget of 5 fits two blocks (4 ≤ 5) but not three (6 > 5); the
	// tail block — the lowest ranked — must be the one dropped.
	blocks := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}
	got := TrimMatches(nil, blocks, 5)
	if len(got) != 2 {
		t.Fatalf("want 2 blocks after trim, got %d", len(got))
	}
	if got[0] != "aaaaaaaa" || got[1] != "bbbbbbbb" {
		t.Errorf("want top-ranked blocks retained, got %v", got)
	}
}

func Test_TrimMatches_EmptyBlocks(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	got := TrimMatches(fixed, nil, DefaultMaxContextTokens)
	if len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimMatches_AllDroppedWhenFixedExceedsBudget(t *testing.T) {
	t.Parallel()
	// Fixed alone exceeds budget — all blocks should be dropped.
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("x", 4*7000)), // ~7000 tokens
	}
	blocks := []string{"a", "b"}
	got := TrimMatches(fixed, blocks, 6000)
	if len(got) != 0 {
		t.Errorf("want 0 blocks, got %d", len(got))
	}
}
