// Package errdefs defines the error taxonomy shared by the pipeline
// executor and the retrieval engine. Four classes exist:
//
//   - [ValidationError]: malformed caller input (negative top-k, an
//     unknown candidate ID in a manual selection). Raised directly to
//     the caller, never swallowed.
//   - [StageExecutionError]: a stage's own logic failed, including a
//     generation collaborator returning unparseable output. Caught by
//     the executor and converted into an error_handler transition.
//   - [CollaboratorUnavailableError]: an external collaborator
//     (embedding, vector search, generation) was unreachable or timed
//     out. Handled like a stage execution failure.
//   - [ConfigurationError]: the routing table references an undefined
//     stage. Fatal — indicates a programming mistake, never recovered
//     at runtime.
//
// Callers classify with [errors.As] against the concrete types.
package errdefs

import "fmt"

// ValidationError indicates malformed caller-supplied input.
type ValidationError struct {
	// Reason describes what was invalid.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// Validationf constructs a ValidationError with a formatted reason.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StageExecutionError indicates a stage's own logic failed.
type StageExecutionError struct {
	// Stage is the name of the failing stage.
	Stage string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying failure for [errors.Is] chains.
func (e *StageExecutionError) Unwrap() error { return e.Err }

// CollaboratorUnavailableError indicates an external collaborator was
// unreachable or timed out.
type CollaboratorUnavailableError struct {
	// Collaborator identifies the dependency (e.g. "qdrant", "llm").
	Collaborator string
	// Err is the underlying transport or timeout error.
	Err error
}

// Error implements the error interface.
func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

// Unwrap exposes the underlying failure for [errors.Is] chains.
func (e *CollaboratorUnavailableError) Unwrap() error { return e.Err }

// ConfigurationError indicates an executor misconfiguration, such as a
// routing table entry naming an undefined stage.
type ConfigurationError struct {
	// Reason describes the misconfiguration.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Reason)
}

// Configurationf constructs a ConfigurationError with a formatted reason.
func Configurationf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
