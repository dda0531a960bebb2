// Package errors classifies collaborator failures and retries the
// transient ones with exponential backoff.
//
// Steps that call external services (model, search, deadline store) wrap
// those calls in Retry. A failure that survives the retry policy is
// returned as a *CategorizedError, which the step turns into degraded
// text or a fatal error depending on its role in the workflow.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, overloaded model, timeouts.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: missing binary, invalid configuration, bad input data.
	CategoryPermanent

	// CategoryCanceled indicates the caller gave up.
	CategoryCanceled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and the operation
// that produced it.
type CategorizedError struct {
	Err      error
	Category Category
	// Op names the collaborator call, e.g. "classify".
	Op string
	// Attempts is the number of calls made before giving up.
	Attempts int
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v (%s, attempts: %d)", e.Op, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%v (%s, attempts: %d)", e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(op string, err error) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Op: op}
}

// Permanent marks err as not worth retrying.
func Permanent(op string, err error) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Op: op}
}

// retryable is implemented by client errors that know whether they are
// transient, such as llm.Error.
type retryable interface {
	Retryable() bool
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var emptyErr *EmptyOutputError
	if errors.As(err, &emptyErr) {
		return CategoryTransient
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryPermanent
	}

	var r retryable
	if errors.As(err, &r) {
		if r.Retryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
