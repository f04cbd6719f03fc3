// Package stages implements the pipeline stages that carry an analysis
// run from raw requirement text to stories: intake, retrieve, impact,
// effort, design, stories, and the error handler. Each stage is a small
// struct holding its collaborators and returning a sparse state.Update;
// stage failures are returned as errors for the executor to route.
package stages

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// maxRequirementLen caps accepted requirement text. Longer inputs are
// almost always pasted documents, not requirements, and would blow the
// generation context budget downstream.
const maxRequirementLen = 8000

// Intake validates the raw requirement before any collaborator is
// involved, so malformed runs fail cheaply at the first stage.
type Intake struct{}

// NewIntake constructs the intake stage.
func NewIntake() *Intake { return &Intake{} }

// Name returns the stage's routing name.
func (st *Intake) Name() pipeline.Name { return pipeline.StageIntake }

// Run checks the requirement text. The requirement itself is an input
// field fixed at run creation, so the stage only validates and records
// acceptance; it never rewrites the text.
func (st *Intake) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	trimmed := strings.TrimSpace(s.Requirement)
	if trimmed == "" {
		return state.Update{}, &errdefs.StageExecutionError{
			Stage: string(pipeline.StageIntake),
			Err:   fmt.Errorf("requirement is empty after trimming whitespace"),
		}
	}
	if n := utf8.RuneCountInString(trimmed); n > maxRequirementLen {
		return state.Update{}, &errdefs.StageExecutionError{
			Stage: string(pipeline.StageIntake),
			Err:   fmt.Errorf("requirement is %d characters, limit is %d", n, maxRequirementLen),
		}
	}

	return state.Update{
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageIntake),
			Message: fmt.Sprintf("requirement accepted (%d characters)", utf8.RuneCountInString(trimmed)),
			At:      time.Now().UTC(),
		}},
	}, nil
}
