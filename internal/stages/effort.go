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

// Effort produces the person-days estimate, anchored on the selected
// historical matches and the impact assessment.
type Effort struct {
	gen generate.Generator
}

// NewEffort constructs the effort stage.
func NewEffort(gen generate.Generator) (*Effort, error) {
	if gen == nil {
		return nil, errdefs.Configurationf("stages: effort requires a generator")
	}
	return &Effort{gen: gen}, nil
}

// Name returns the stage's routing name.
func (st *Effort) Name() pipeline.Name { return pipeline.StageEffort }

// Run asks the model for an effort estimate and parses the envelope.
func (st *Effort) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	out, err := st.gen.Generate(ctx, generate.Request{
		SystemPrompt: generate.EffortPrompt,
		UserPrompt:   priorOutputsPrompt(s, "impact"),
		Matches:      s.Matches,
	})
	if err != nil {
		return state.Update{}, err
	}

	effort, err := generate.ParseEffort(out)
	if err != nil {
		return state.Update{}, &errdefs.StageExecutionError{Stage: string(pipeline.StageEffort), Err: err}
	}

	return state.Update{
		Effort: effort,
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageEffort),
			Message: fmt.Sprintf("estimated %.1f person-days (confidence %.2f)", effort.PersonDays, effort.Confidence),
			At:      time.Now().UTC(),
		}},
	}, nil
}
