package energyflow

import "errors"

// Ingestion validation errors. Callers match them with errors.Is.
var (
	ErrInvalidTokenCount = errors.New("token count must be positive")
	ErrInvalidSpeed      = errors.New("generation speed must be a non-negative number")
	ErrInvalidComplexity = errors.New("complexity must be a finite number")
	ErrMissingStream     = errors.New("stream id is required")
	ErrMissingModel      = errors.New("model id is required")
	ErrUnknownModel      = errors.New("model id not present in factor table")
	ErrSessionDrained    = errors.New("session drained; start a new session")
)

// ErrorCode classifies recoverable failures reported through ErrorEvent.
type ErrorCode string

const (
	CodeTaskFailed         ErrorCode = "task_failed"
	CodeCriticalTaskFailed ErrorCode = "critical_task_failed"
	CodeTaskPanic          ErrorCode = "task_panic"
)

// Severity grades an ErrorEvent.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)
