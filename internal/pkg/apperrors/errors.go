package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds of the core. Every failure raised by a service wraps one of
// these sentinels so that callers can branch with errors.Is.
var (
	// ErrNotFound is returned when a referenced record is absent.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidYear is returned for years outside the seeded catalog.
	ErrInvalidYear = errors.New("academic year outside the seeded range")
	// ErrIntegrityFailure is returned when a domain invariant would break.
	ErrIntegrityFailure = errors.New("integrity failure")
	// ErrConcurrentUpdate is returned when an optimistic lock check fails;
	// the caller may re-fetch and retry.
	ErrConcurrentUpdate = errors.New("record was modified concurrently")
	// ErrPermissionDenied is returned when a role predicate refuses.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotEligibleForConsolidation is returned for proposals that are
	// neither accepted nor refused.
	ErrNotEligibleForConsolidation = errors.New("proposal is not eligible for consolidation")
)

// NewNotFound builds a not-found error for a named resource.
func NewNotFound(format string, args ...interface{}) error {
	return &CustomError{Err: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidYear builds an invalid-year error carrying the requested value.
func NewInvalidYear(year int) error {
	return &CustomError{
		Err:     ErrInvalidYear,
		Message: fmt.Sprintf("academic year %d is not in the catalog", year),
	}
}

// NewIntegrityFailure builds an integrity error with a formatted message.
func NewIntegrityFailure(format string, args ...interface{}) error {
	return &CustomError{Err: ErrIntegrityFailure, Message: fmt.Sprintf(format, args...)}
}

// NewPermissionDenied builds a permission error attributed to the predicate
// that refused.
func NewPermissionDenied(permName string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Message: fmt.Sprintf("permission %q denied", permName),
		Code:    permName,
	}
}

// CustomError attaches a message, a machine-readable code and optional
// details to a sentinel error.
type CustomError struct {
	Err     error
	Message string
	Code    string
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap exposes the sentinel for errors.Is.
func (e *CustomError) Unwrap() error { return e.Err }

// WithCode sets the machine-readable code.
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}

// WithDetails attaches context details.
func (e *CustomError) WithDetails(details map[string]interface{}) *CustomError {
	e.Details = details
	return e
}

// FieldDiff is one tracked field whose value diverges between two consecutive
// year-snapshots.
type FieldDiff struct {
	Field     string `json:"field"`
	PrevValue string `json:"prevValue"`
	NextValue string `json:"nextValue"`
	Year      int    `json:"year"`
}

func (d FieldDiff) String() string {
	return fmt.Sprintf("%s differs in %d: %q became %q", d.Field, d.Year, d.PrevValue, d.NextValue)
}

// ConsistencyError blocks a multi-year propagation: a tracked field diverges
// between two consecutive snapshots. LastApplied is the last year the update
// reached; nothing beyond it was mutated.
type ConsistencyError struct {
	LastApplied int
	Diffs       []FieldDiff
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	msgs := make([]string, len(e.Diffs))
	for i, d := range e.Diffs {
		msgs[i] = d.String()
	}
	return fmt.Sprintf("consistency broken after %d: %s", e.LastApplied, strings.Join(msgs, "; "))
}
