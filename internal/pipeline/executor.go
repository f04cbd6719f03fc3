package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// maxErrorMessageLen bounds the diagnostic recorded in the run state
// when a stage fails, so collaborator internals never leak wholesale
// into persisted snapshots.
const maxErrorMessageLen = 500

// DefaultOrder is the standard analysis sequence. The terminal stage
// must be the last entry.
var DefaultOrder = []Name{
	StageIntake,
	StageRetrieve,
	StageImpact,
	StageEffort,
	StageDesign,
	StageStories,
	StageDone,
}

// Config holds the dependencies and routing table for an Executor.
type Config struct {
	// Order is the static stage sequence ending in the terminal stage.
	// Defaults to DefaultOrder if empty.
	Order []Name

	// Stages is the set of runnable stages. Every non-terminal entry in
	// Order, plus the error handler, must be registered here.
	Stages []Stage

	// Audit is the optional sink invoked after every stage invocation.
	Audit AuditSink

	// MaxInvocations caps total stage invocations per run. Defaults to
	// 2x the number of distinct registered stages.
	MaxInvocations int
}

// Executor runs the stage state machine. One long-lived instance is
// shared across concurrent runs; each run's stages execute strictly
// sequentially on the caller's goroutine.
type Executor struct {
	// order is the static routing sequence.
	order []Name
	// stages maps stage names to their implementations.
	stages map[Name]Stage
	// audit is the optional per-stage audit sink.
	audit AuditSink
	// maxInvocations caps stage invocations per run.
	maxInvocations int
}

// New constructs an Executor, validating the routing table eagerly:
// a routing entry naming an unregistered stage is a configuration
// error surfaced here, not mid-run.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}
	if order[len(order)-1] != StageDone {
		return nil, errdefs.Configurationf("routing order must end in terminal stage %q, ends in %q", StageDone, order[len(order)-1])
	}

	stages := make(map[Name]Stage, len(cfg.Stages))
	for _, st := range cfg.Stages {
		stages[st.Name()] = st
	}

	for _, name := range order[:len(order)-1] {
		if _, ok := stages[name]; !ok {
			return nil, errdefs.Configurationf("routing order references undefined stage %q", name)
		}
	}
	if _, ok := stages[StageErrorHandler]; !ok {
		return nil, errdefs.Configurationf("no %q stage registered", StageErrorHandler)
	}

	maxInv := cfg.MaxInvocations
	if maxInv <= 0 {
		maxInv = 2 * len(stages)
	}

	return &Executor{
		order:          order,
		stages:         stages,
		audit:          cfg.Audit,
		maxInvocations: maxInv,
	}, nil
}

// Run executes the pipeline against the caller's initial snapshot and
// returns the final merged state. A stage failure is recoverable: the
// run routes through the error handler and completes normally with
// status completed_with_errors. Only malformed input
// ([errdefs.ValidationError]) and routing misconfiguration
// ([errdefs.ConfigurationError]) are returned as errors.
func (e *Executor) Run(ctx context.Context, initial state.RunState) (state.RunState, error) {
	if initial.RunID == "" {
		return initial, errdefs.Validationf("initial state has no run_id")
	}
	if initial.Requirement == "" {
		return initial, errdefs.Validationf("initial state has no requirement text")
	}

	log := logging.FromContext(ctx).With(slog.String("run_id", initial.RunID))

	st := initial
	current := e.order[0]
	invocations := 0

	for current != StageDone {
		stage, ok := e.stages[current]
		if !ok {
			// Routing produced a name with no registered stage. Fatal —
			// never silently swallowed, unlike a stage-level failure.
			return st, errdefs.Configurationf("routed to undefined stage %q", current)
		}

		invocations++
		if invocations > e.maxInvocations {
			return st, errdefs.Configurationf("stage invocation cap exceeded (%d) — routing loop at %q", e.maxInvocations, current)
		}

		st = st.Merge(state.Update{CurrentStage: state.Ptr(string(current))})

		start := time.Now()
		update, err := stage.Run(ctx, st)
		elapsed := time.Since(start)
		if err != nil {
			msg := truncate(err.Error(), maxErrorMessageLen)
			log.Warn("stage failed",
				slog.String("stage", string(current)),
				slog.Duration("duration", elapsed),
				slog.String("error", msg),
			)
			update = state.Update{
				Status:       state.Ptr(state.StatusError),
				ErrorMessage: state.Ptr(msg),
				StageLog: []state.StageEvent{
					{Stage: string(current), Message: "failed: " + msg, At: time.Now().UTC()},
				},
			}
		} else {
			log.Debug("stage completed",
				slog.String("stage", string(current)),
				slog.Duration("duration", elapsed),
			)
		}

		st = st.Merge(update)

		if e.audit != nil {
			if auditErr := e.audit.RecordStage(ctx, st.RunID, current, elapsed, update); auditErr != nil {
				// Audit is observability, not control flow.
				log.Warn("audit sink failed",
					slog.String("stage", string(current)),
					slog.Any("error", auditErr),
				)
			}
		}

		next, routeErr := e.route(current, st)
		if routeErr != nil {
			return st, routeErr
		}
		current = next
	}

	final := state.Update{CurrentStage: state.Ptr(string(StageDone))}
	if st.Status == state.StatusRunning {
		final.Status = state.Ptr(state.StatusCompleted)
	}
	return st.Merge(final), nil
}

// route computes the next stage from the merged state. The error
// handler always routes to the terminal stage; an error status routes
// to the error handler from anywhere; otherwise routing is linear in
// the static order.
func (e *Executor) route(current Name, merged state.RunState) (Name, error) {
	if current == StageErrorHandler {
		return StageDone, nil
	}
	if merged.Status == state.StatusError {
		return StageErrorHandler, nil
	}
	for i, name := range e.order[:len(e.order)-1] {
		if name == current {
			return e.order[i+1], nil
		}
	}
	return "", errdefs.Configurationf("stage %q is not in the routing order", current)
}

// truncate bounds s to max bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
