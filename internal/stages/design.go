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

// Design produces the design document, consistent with the impact
// assessment and effort estimate already in the run state.
type Design struct {
	gen generate.Generator
}

// NewDesign constructs the design stage.
func NewDesign(gen generate.Generator) (*Design, error) {
	if gen == nil {
		return nil, errdefs.Configurationf("stages: design requires a generator")
	}
	return &Design{gen: gen}, nil
}

// Name returns the stage's routing name.
func (st *Design) Name() pipeline.Name { return pipeline.StageDesign }

// Run asks the model for a design document and parses the envelope.
func (st *Design) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	out, err := st.gen.Generate(ctx, generate.Request{
		SystemPrompt: generate.DesignPrompt,
		UserPrompt:   priorOutputsPrompt(s, "impact", "effort"),
		Matches:      s.Matches,
	})
	if err != nil {
		return state.Update{}, err
	}

	doc, err := generate.ParseDesign(out)
	if err != nil {
		return state.Update{}, &errdefs.StageExecutionError{Stage: string(pipeline.StageDesign), Err: err}
	}

	return state.Update{
		DesignDoc: state.Ptr(doc),
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageDesign),
			Message: fmt.Sprintf("drafted design document (%d characters)", len(doc)),
			At:      time.Now().UTC(),
		}},
	}, nil
}
