package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/54b3r/reqpilot-go/internal/state"
)

// extractJSON returns the JSON object embedded in a model completion.
// Models occasionally wrap the envelope in markdown fencing or prefix it
// with prose despite the prompt rules, so the parser takes the substring
// from the first '{' to the last '}' before unmarshalling.
func extractJSON(output string) (string, error) {
	start := strings.IndexByte(output, '{')
	end := strings.LastIndexByte(output, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("generate: completion contains no JSON object")
	}
	return output[start : end+1], nil
}

// ParseImpact parses a module impact completion into an ImpactAssessment.
func ParseImpact(output string) (*state.ImpactAssessment, error) {
	raw, err := extractJSON(output)
	if err != nil {
		return nil, err
	}
	var impact state.ImpactAssessment
	if err := json.Unmarshal([]byte(raw), &impact); err != nil {
		return nil, fmt.Errorf("generate: failed to unmarshal impact assessment: %w", err)
	}
	if len(impact.Modules) == 0 {
		return nil, fmt.Errorf("generate: impact assessment lists no modules")
	}
	return &impact, nil
}

// ParseEffort parses an effort estimation completion into an EffortEstimate.
func ParseEffort(output string) (*state.EffortEstimate, error) {
	raw, err := extractJSON(output)
	if err != nil {
		return nil, err
	}
	var effort state.EffortEstimate
	if err := json.Unmarshal([]byte(raw), &effort); err != nil {
		return nil, fmt.Errorf("generate: failed to unmarshal effort estimate: %w", err)
	}
	if effort.PersonDays <= 0 {
		return nil, fmt.Errorf("generate: effort estimate has non-positive person_days %v", effort.PersonDays)
	}
	if effort.Confidence < 0 || effort.Confidence > 1 {
		return nil, fmt.Errorf("generate: effort estimate confidence %v outside [0,1]", effort.Confidence)
	}
	return &effort, nil
}

// designEnvelope is the JSON shape returned by the design document stage.
type designEnvelope struct {
	DesignDoc string `json:"design_doc"`
}

// ParseDesign parses a design document completion into the markdown body.
func ParseDesign(output string) (string, error) {
	raw, err := extractJSON(output)
	if err != nil {
		return "", err
	}
	var envelope designEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return "", fmt.Errorf("generate: failed to unmarshal design document: %w", err)
	}
	if strings.TrimSpace(envelope.DesignDoc) == "" {
		return "", fmt.Errorf("generate: design document is empty")
	}
	return envelope.DesignDoc, nil
}

// storiesEnvelope is the JSON shape returned by the user stories stage.
type storiesEnvelope struct {
	Stories []state.Story `json:"stories"`
}

// ParseStories parses a user stories completion into the story list.
func ParseStories(output string) ([]state.Story, error) {
	raw, err := extractJSON(output)
	if err != nil {
		return nil, err
	}
	var envelope storiesEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("generate: failed to unmarshal stories: %w", err)
	}
	if len(envelope.Stories) == 0 {
		return nil, fmt.Errorf("generate: completion contains no stories")
	}
	for i, s := range envelope.Stories {
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("generate: story %d has an empty title", i)
		}
	}
	return envelope.Stories, nil
}
