// Package pipeline implements the stage executor that drives an
// analysis run. Stages are a closed enumeration; the executor threads a
// [state.RunState] through them in a statically configured order, with
// the next stage computed dynamically from the merged state so a stage
// failure can branch to the error handler.
package pipeline

import (
	"context"
	"time"

	"github.com/54b3r/reqpilot-go/internal/state"
)

// Name identifies a pipeline stage. The set is closed — routing tables
// are validated against registered stages at construction time so a
// typo fails fast instead of surfacing mid-run.
type Name string

const (
	// StageIntake validates and normalizes the raw requirement.
	StageIntake Name = "intake"
	// StageRetrieve ranks and selects similar historical work items.
	StageRetrieve Name = "retrieve"
	// StageImpact produces the module impact assessment.
	StageImpact Name = "impact"
	// StageEffort produces the effort estimate.
	StageEffort Name = "effort"
	// StageDesign produces the design document.
	StageDesign Name = "design"
	// StageStories produces the user stories.
	StageStories Name = "stories"
	// StageErrorHandler records a stage failure and finalizes the run
	// with completed_with_errors. Always routes to the terminal stage.
	StageErrorHandler Name = "error_handler"
	// StageDone is the terminal stage. It is never invoked — reaching it
	// ends the run.
	StageDone Name = "done"
)

// Stage is one named unit of pipeline work. Implementations must not
// mutate the snapshot they receive; all effects flow through the
// returned partial update.
type Stage interface {
	// Name returns the stage's routing name.
	Name() Name

	// Run executes the stage against the current snapshot and returns
	// the partial update to merge. A returned error is recoverable: the
	// executor converts it into an error-status update and routes to the
	// error handler.
	Run(ctx context.Context, s state.RunState) (state.Update, error)
}

// AuditSink receives a record after every stage invocation. Sink
// failures are logged by the executor and never abort the run.
// Implementations must be safe for concurrent use across runs.
type AuditSink interface {
	// RecordStage records one completed stage invocation and the partial
	// update it produced (the synthesized failure update, for a failed stage).
	RecordStage(ctx context.Context, runID string, stage Name, duration time.Duration, update state.Update) error
}
