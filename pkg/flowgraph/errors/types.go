package errors

import "fmt"

// EmptyOutputError indicates a collaborator answered with nothing usable.
// Model replies are not deterministic, so it is treated as transient.
type EmptyOutputError struct {
	Op string
}

// Error implements the error interface.
func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("%s returned empty output", e.Op)
}

// ValidationError indicates malformed input data, such as a tracked
// finding with an unparseable deadline.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
