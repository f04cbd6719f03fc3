// Package state defines the run state threaded through an analysis
// pipeline run, and the merge rules stages use to update it.
//
// A RunState is an immutable snapshot. Stages never mutate it; they
// return an [Update] holding only the fields they touched, and the
// executor folds each update into a fresh snapshot via [RunState.Merge].
// Field kinds are enumerated statically:
//
//   - input fields (RunID, Requirement, CreatedAt) are set once at
//     creation and never written by stages;
//   - overwrite fields (Status, CurrentStage, ErrorMessage, Matches,
//     Impact, Effort, DesignDoc, Stories) are last-writer-wins;
//   - accumulator fields (StageLog) are append-only — an update
//     contributes an increment that is concatenated, never replacing
//     prior entries.
package state

import (
	"time"
)

// Status is the lifecycle status of a pipeline run.
type Status string

const (
	// StatusRunning means the run is in progress.
	StatusRunning Status = "running"
	// StatusError means the most recent stage reported a failure and the
	// run is routing to the error handler.
	StatusError Status = "error"
	// StatusCompleted means the run finished with every stage succeeding.
	StatusCompleted Status = "completed"
	// StatusCompletedWithErrors means the run finished, but via the error
	// handler after a stage failure.
	StatusCompletedWithErrors Status = "completed_with_errors"
)

// SelectedMatch is a historical work item chosen from a ranked retrieval
// result and copied into the run state. It is a value copy — the ranked
// list it came from is discarded after selection.
type SelectedMatch struct {
	// ID is the work item identifier.
	ID string `json:"id"`
	// Title is the work item display text.
	Title string `json:"title"`
	// SemanticScore is the embedding similarity component in [0,1].
	SemanticScore float64 `json:"semantic_score"`
	// KeywordScore is the token overlap component in [0,1].
	KeywordScore float64 `json:"keyword_score"`
	// FinalScore is the fused ranking score.
	FinalScore float64 `json:"final_score"`
	// Rank is the 1-based position in the ranked list at selection time.
	Rank int `json:"rank"`
	// Metadata carries auxiliary display fields (module, effort, etc.)
	// unchanged from the source item.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ModuleImpact describes the predicted impact on one system module.
type ModuleImpact struct {
	// Module is the affected module name.
	Module string `json:"module"`
	// Level is the impact level: high, medium, or low.
	Level string `json:"level"`
	// Reason explains why the module is affected.
	Reason string `json:"reason"`
}

// ImpactAssessment is the output of the module impact stage.
type ImpactAssessment struct {
	// Modules lists the affected modules with per-module detail.
	Modules []ModuleImpact `json:"modules"`
	// Summary is a one-paragraph overall assessment.
	Summary string `json:"summary"`
}

// EffortEstimate is the output of the effort estimation stage.
type EffortEstimate struct {
	// PersonDays is the estimated engineering effort.
	PersonDays float64 `json:"person_days"`
	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Rationale explains how the estimate was derived, typically by
	// reference to the selected historical matches.
	Rationale string `json:"rationale"`
}

// Story is a single user story produced by the stories stage.
type Story struct {
	// Title is the story headline.
	Title string `json:"title"`
	// Description is the story body in as-a/I-want/so-that form.
	Description string `json:"description"`
	// AcceptanceCriteria lists testable completion conditions.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// StageEvent is one entry in the append-only stage log.
type StageEvent struct {
	// Stage is the stage that produced the event.
	Stage string `json:"stage"`
	// Message is a short human-readable completion note.
	Message string `json:"message"`
	// At is when the event was recorded.
	At time.Time `json:"at"`
}

// RunState is one immutable snapshot of a pipeline run.
type RunState struct {
	// RunID uniquely identifies the run. Input field.
	RunID string `json:"run_id"`
	// Requirement is the raw free-text requirement. Input field.
	Requirement string `json:"requirement"`
	// CreatedAt is when the run was created. Input field.
	CreatedAt time.Time `json:"created_at"`

	// Status is the run lifecycle status. Overwrite field.
	Status Status `json:"status"`
	// CurrentStage is the name of the stage most recently entered.
	// Overwrite field.
	CurrentStage string `json:"current_stage"`
	// ErrorMessage holds the bounded diagnostic recorded when a stage
	// fails. Empty on clean runs. Overwrite field.
	ErrorMessage string `json:"error_message,omitempty"`
	// Matches holds the selected historical work items. Overwrite field.
	Matches []SelectedMatch `json:"matches,omitempty"`
	// Impact is the module impact assessment. Overwrite field.
	Impact *ImpactAssessment `json:"impact,omitempty"`
	// Effort is the effort estimate. Overwrite field.
	Effort *EffortEstimate `json:"effort,omitempty"`
	// DesignDoc is the generated design document markdown. Overwrite field.
	DesignDoc string `json:"design_doc,omitempty"`
	// Stories holds the generated user stories. Overwrite field.
	Stories []Story `json:"stories,omitempty"`

	// StageLog records stage completion events in order. Accumulator
	// field — entries are only ever appended, never replaced or reordered.
	StageLog []StageEvent `json:"stage_log"`
}

// New constructs the initial snapshot for a run. The three input fields
// are fixed here and never touched by stage updates.
func New(runID, requirement string, now time.Time) RunState {
	return RunState{
		RunID:       runID,
		Requirement: requirement,
		CreatedAt:   now,
		Status:      StatusRunning,
	}
}

// Update is the partial update a stage returns. A nil pointer (or nil
// slice, for slice-valued overwrite fields) means "leave untouched";
// the merged snapshot retains the prior value bit-identically. A
// non-nil value replaces the prior one for overwrite fields, and is
// concatenated for the accumulator StageLog.
type Update struct {
	// Status replaces the run status when non-nil.
	Status *Status
	// CurrentStage replaces the current stage pointer when non-nil.
	CurrentStage *string
	// ErrorMessage replaces the error diagnostic when non-nil.
	ErrorMessage *string
	// Matches replaces the selected matches when non-nil. Pass an empty
	// non-nil slice to clear a previous selection.
	Matches []SelectedMatch
	// Impact replaces the impact assessment when non-nil.
	Impact *ImpactAssessment
	// Effort replaces the effort estimate when non-nil.
	Effort *EffortEstimate
	// DesignDoc replaces the design document when non-nil.
	DesignDoc *string
	// Stories replaces the story list when non-nil.
	Stories []Story
	// StageLog is appended to the run's stage log. Prior entries are
	// never shrunk or reordered.
	StageLog []StageEvent
}

// Touched returns the wire-form names of the fields this update sets or
// extends, in declaration order. Used by audit sinks to describe a
// partial update without serializing its contents.
func (u Update) Touched() []string {
	var fields []string
	if u.Status != nil {
		fields = append(fields, "status")
	}
	if u.CurrentStage != nil {
		fields = append(fields, "current_stage")
	}
	if u.ErrorMessage != nil {
		fields = append(fields, "error_message")
	}
	if u.Matches != nil {
		fields = append(fields, "matches")
	}
	if u.Impact != nil {
		fields = append(fields, "impact")
	}
	if u.Effort != nil {
		fields = append(fields, "effort")
	}
	if u.DesignDoc != nil {
		fields = append(fields, "design_doc")
	}
	if u.Stories != nil {
		fields = append(fields, "stories")
	}
	if len(u.StageLog) > 0 {
		fields = append(fields, "stage_log")
	}
	return fields
}

// Merge folds u into s and returns a new snapshot. It is total (never
// fails) and never mutates s, so callers may retain prior snapshots for
// audit inspection. Folding a sequence of updates one at a time is
// equivalent to folding them through intermediate snapshots in the same
// order.
func (s RunState) Merge(u Update) RunState {
	out := s

	if u.Status != nil {
		out.Status = *u.Status
	}
	if u.CurrentStage != nil {
		out.CurrentStage = *u.CurrentStage
	}
	if u.ErrorMessage != nil {
		out.ErrorMessage = *u.ErrorMessage
	}
	if u.Matches != nil {
		out.Matches = append([]SelectedMatch(nil), u.Matches...)
	}
	if u.Impact != nil {
		out.Impact = u.Impact
	}
	if u.Effort != nil {
		out.Effort = u.Effort
	}
	if u.DesignDoc != nil {
		out.DesignDoc = *u.DesignDoc
	}
	if u.Stories != nil {
		out.Stories = append([]Story(nil), u.Stories...)
	}
	if len(u.StageLog) > 0 {
		// Copy into a fresh backing array so appends never write into a
		// prior snapshot's log.
		log := make([]StageEvent, len(s.StageLog), len(s.StageLog)+len(u.StageLog))
		copy(log, s.StageLog)
		out.StageLog = append(log, u.StageLog...)
	}

	return out
}

// Field returns the value of the named field and whether the name is
// known. Field names use the snake_case wire form (e.g. "design_doc").
func (s RunState) Field(name string) (any, bool) {
	switch name {
	case "run_id":
		return s.RunID, true
	case "requirement":
		return s.Requirement, true
	case "created_at":
		return s.CreatedAt, true
	case "status":
		return s.Status, true
	case "current_stage":
		return s.CurrentStage, true
	case "error_message":
		return s.ErrorMessage, true
	case "matches":
		return s.Matches, true
	case "impact":
		return s.Impact, true
	case "effort":
		return s.Effort, true
	case "design_doc":
		return s.DesignDoc, true
	case "stories":
		return s.Stories, true
	case "stage_log":
		return s.StageLog, true
	default:
		return nil, false
	}
}

// GetString looks up a string-valued field by name, returning def when
// the field is unknown or not a string. It never panics on a missing key.
func (s RunState) GetString(name, def string) string {
	v, ok := s.Field(name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case Status:
		return string(t)
	default:
		return def
	}
}

// Ptr returns a pointer to v. Convenience for building sparse updates.
func Ptr[T any](v T) *T { return &v }
