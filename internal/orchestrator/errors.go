package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull        = errors.New("job queue is full")
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// ValidationError reports missing or invalid job parameters.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown job, input file, or template.
type NotFoundError struct {
	What string
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return e.What + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.What, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// EngineError wraps a failure raised by the download or transcription
// engine. The engine's message is kept verbatim.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
