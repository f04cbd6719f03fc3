package retrieval

import (
	"github.com/54b3r/reqpilot-go/internal/errdefs"
)

// SelectTop returns the first n entries of an already-ranked list,
// preserving order. If fewer than n entries exist, all are returned.
// n <= 0 yields an empty selection.
func SelectTop(ranked []RankedMatch, n int) []RankedMatch {
	if n <= 0 {
		return []RankedMatch{}
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// SelectByID validates a manual selection against the most recent
// ranked list and returns the chosen matches in ranked order. Every
// requested ID must be present in ranked — an unknown ID is a
// [errdefs.ValidationError], never a silent drop. Duplicate IDs in the
// request collapse to a single selection.
func SelectByID(ranked []RankedMatch, ids []string) ([]RankedMatch, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	known := make(map[string]bool, len(ranked))
	for _, m := range ranked {
		known[m.Candidate.ID] = true
	}
	for id := range wanted {
		if !known[id] {
			return nil, errdefs.Validationf("selection references unknown candidate %q", id)
		}
	}

	selected := make([]RankedMatch, 0, len(wanted))
	for _, m := range ranked {
		if wanted[m.Candidate.ID] {
			selected = append(selected, m)
		}
	}
	return selected, nil
}
