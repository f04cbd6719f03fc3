package ingestion

import (
	"strings"
)

// InferredMetadata holds the module and work-item kind inferred from an
// item's ticket key and title. Explicit record fields take precedence
// over inferred values — this is the "best-effort" fallback when the
// source export doesn't carry explicit metadata.
type InferredMetadata struct {
	// Module is the system module label (auth, billing, platform, ...).
	Module string
	// Kind classifies the work item (feature, bugfix, migration, refactor).
	Kind string
}

// projectModuleAliases maps common ticket-key project prefixes to our
// canonical module label.
var projectModuleAliases = map[string]string{
	"auth":  "auth",
	"iam":   "auth",
	"sso":   "auth",
	"bill":  "billing",
	"pay":   "billing",
	"inv":   "billing",
	"infra": "platform",
	"plat":  "platform",
	"ops":   "platform",
	"api":   "api",
	"gw":    "api",
	"ui":    "frontend",
	"web":   "frontend",
	"data":  "data",
	"etl":   "data",
	"rpt":   "reporting",
}

// kindTitleMarkers maps title word stems to work-item kinds. A title
// word matches when it starts with the stem ("fixes", "migrated"), so
// words merely containing a stem ("prefix") do not. Checked in order —
// the first stem found wins.
var kindTitleMarkers = []struct {
	stem string
	kind string
}{
	{"fix", "bugfix"},
	{"bug", "bugfix"},
	{"crash", "bugfix"},
	{"regression", "bugfix"},
	{"migrat", "migration"},
	{"upgrad", "migration"},
	{"deprecat", "migration"},
	{"refactor", "refactor"},
	{"rework", "refactor"},
	{"cleanup", "refactor"},
}

// InferMetadata inspects a work item's ticket key and title and returns
// best-effort metadata. If neither matches a known pattern the returned
// fields contain sensible defaults ("general", "feature").
//
// Supported key patterns:
//
//	{PREFIX}-{number}   e.g. "AUTH-123", "BILL-77"
//	{prefix}/{number}   e.g. "auth/123"
func InferMetadata(itemID, title string) InferredMetadata {
	m := InferredMetadata{
		Module: "general",
		Kind:   "feature",
	}

	if prefix := keyPrefix(itemID); prefix != "" {
		if alias, ok := projectModuleAliases[prefix]; ok {
			m.Module = alias
		}
	}

	words := strings.Fields(strings.ToLower(title))
markers:
	for _, km := range kindTitleMarkers {
		for _, w := range words {
			if strings.HasPrefix(w, km.stem) {
				m.Kind = km.kind
				break markers
			}
		}
	}

	return m
}

// keyPrefix extracts the lowercase project prefix from a ticket key.
// Returns "" when the key has no recognizable prefix separator.
func keyPrefix(itemID string) string {
	for _, sep := range []string{"-", "/"} {
		if before, _, found := strings.Cut(itemID, sep); found && before != "" {
			return strings.ToLower(before)
		}
	}
	return ""
}
