package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/54b3r/reqpilot-go/internal/state"
)

// requirementPrompt renders the requirement text as the user message for
// the first generation stage.
func requirementPrompt(s state.RunState) string {
	return "## Requirement\n\n" + strings.TrimSpace(s.Requirement)
}

// priorOutputsPrompt renders the requirement plus the named prior stage
// outputs so later stages stay consistent with earlier ones. Outputs are
// rendered as JSON — the same shape the model was asked to produce —
// rather than re-prosed.
func priorOutputsPrompt(s state.RunState, sections ...string) string {
	var sb strings.Builder
	sb.WriteString(requirementPrompt(s))

	for _, section := range sections {
		switch section {
		case "impact":
			if s.Impact != nil {
				appendJSONSection(&sb, "Impact Assessment", s.Impact)
			}
		case "effort":
			if s.Effort != nil {
				appendJSONSection(&sb, "Effort Estimate", s.Effort)
			}
		case "design":
			if s.DesignDoc != "" {
				fmt.Fprintf(&sb, "\n\n## Design Document\n\n%s", s.DesignDoc)
			}
		}
	}
	return sb.String()
}

func appendJSONSection(sb *strings.Builder, title string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(sb, "\n\n## %s\n\n%s", title, raw)
}
