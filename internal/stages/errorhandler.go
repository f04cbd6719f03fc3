package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// ErrorHandler finalizes a run after a stage failure. It never fails
// itself: whatever diagnostic the executor recorded is preserved and the
// run closes as completed_with_errors, keeping every artifact produced
// before the failure.
type ErrorHandler struct{}

// NewErrorHandler constructs the error handler stage.
func NewErrorHandler() *ErrorHandler { return &ErrorHandler{} }

// Name returns the stage's routing name.
func (st *ErrorHandler) Name() pipeline.Name { return pipeline.StageErrorHandler }

// Run marks the run completed_with_errors and records the closure.
func (st *ErrorHandler) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	msg := "run finalized after stage failure"
	if s.ErrorMessage != "" {
		msg = fmt.Sprintf("run finalized after stage failure: %s", s.ErrorMessage)
	}
	return state.Update{
		Status: state.Ptr(state.StatusCompletedWithErrors),
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageErrorHandler),
			Message: msg,
			At:      time.Now().UTC(),
		}},
	}, nil
}
