package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/generate"
	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// Impact produces the module impact assessment from the requirement and
// the selected historical matches.
type Impact struct {
	gen generate.Generator
}

// NewImpact constructs the impact stage.
func NewImpact(gen generate.Generator) (*Impact, error) {
	if gen == nil {
		return nil, errdefs.Configurationf("stages: impact requires a generator")
	}
	return &Impact{gen: gen}, nil
}

// Name returns the stage's routing name.
func (st *Impact) Name() pipeline.Name { return pipeline.StageImpact }

// Run asks the model for an impact assessment and parses the envelope.
// An unparseable completion is a stage execution failure, not a
// collaborator outage — the model responded, just not usably.
func (st *Impact) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	out, err := st.gen.Generate(ctx, generate.Request{
		SystemPrompt: generate.ImpactPrompt,
		UserPrompt:   requirementPrompt(s),
		Matches:      s.Matches,
	})
	if err != nil {
		return state.Update{}, err
	}

	impact, err := generate.ParseImpact(out)
	if err != nil {
		return state.Update{}, &errdefs.StageExecutionError{Stage: string(pipeline.StageImpact), Err: err}
	}

	return state.Update{
		Impact: impact,
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageImpact),
			Message: fmt.Sprintf("assessed impact on %d modules", len(impact.Modules)),
			At:      time.Now().UTC(),
		}},
	}, nil
}
