package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// SlogSink implements [pipeline.AuditSink] by emitting one structured
// log entry per stage invocation. It records which state fields the
// stage touched, never their contents — stage outputs can carry
// requirement text that does not belong in operational logs.
type SlogSink struct {
	// log is the destination logger.
	log *slog.Logger
}

// NewSlogSink constructs a SlogSink writing to log.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

// RecordStage emits the audit entry for one stage invocation.
func (s *SlogSink) RecordStage(ctx context.Context, runID string, stage pipeline.Name, duration time.Duration, update state.Update) error {
	s.log.LogAttrs(ctx, slog.LevelInfo, "audit: stage",
		slog.String("run_id", runID),
		slog.String("stage", string(stage)),
		slog.Duration("duration", duration),
		slog.String("fields", strings.Join(update.Touched(), ",")),
	)
	return nil
}

// MultiSink fans a stage record out to several sinks. Each sink is
// invoked even when an earlier one fails; the first error is returned
// so the executor can log it.
type MultiSink struct {
	// sinks is the ordered fan-out list.
	sinks []pipeline.AuditSink
}

// NewMultiSink constructs a MultiSink over the given sinks. Nil entries
// are skipped.
func NewMultiSink(sinks ...pipeline.AuditSink) *MultiSink {
	kept := make([]pipeline.AuditSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

// RecordStage forwards the record to every registered sink.
func (m *MultiSink) RecordStage(ctx context.Context, runID string, stage pipeline.Name, duration time.Duration, update state.Update) error {
	var first error
	for _, s := range m.sinks {
		if err := s.RecordStage(ctx, runID, stage, duration, update); err != nil && first == nil {
			first = err
		}
	}
	return first
}
