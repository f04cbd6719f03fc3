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

// Stories breaks the requirement into user stories, consistent with the
// design document already in the run state.
type Stories struct {
	gen generate.Generator
}

// NewStories constructs the stories stage.
func NewStories(gen generate.Generator) (*Stories, error) {
	if gen == nil {
		return nil, errdefs.Configurationf("stages: stories requires a generator")
	}
	return &Stories{gen: gen}, nil
}

// Name returns the stage's routing name.
func (st *Stories) Name() pipeline.Name { return pipeline.StageStories }

// Run asks the model for user stories and parses the envelope.
func (st *Stories) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	out, err := st.gen.Generate(ctx, generate.Request{
		SystemPrompt: generate.StoriesPrompt,
		UserPrompt:   priorOutputsPrompt(s, "impact", "design"),
		Matches:      s.Matches,
	})
	if err != nil {
		return state.Update{}, err
	}

	stories, err := generate.ParseStories(out)
	if err != nil {
		return state.Update{}, &errdefs.StageExecutionError{Stage: string(pipeline.StageStories), Err: err}
	}

	return state.Update{
		Stories: stories,
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageStories),
			Message: fmt.Sprintf("produced %d user stories", len(stories)),
			At:      time.Now().UTC(),
		}},
	}, nil
}
