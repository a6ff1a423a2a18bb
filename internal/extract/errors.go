package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a single backend failure.
type Kind string

// Backend failure kinds.
const (
	KindQuota    Kind = "quota"
	KindNotFound Kind = "not_found"
	KindOther    Kind = "other"
)

// BackendError is the typed failure a BackendInvoker returns. Implementations
// map their own error surface onto Kind once, at the boundary.
type BackendError struct {
	Backend    string
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// QuotaError builds a Quota-kind BackendError.
func QuotaError(backend string, retryAfter time.Duration, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindQuota, RetryAfter: retryAfter, Err: err}
}

// NotFoundError builds a NotFound-kind BackendError.
func NotFoundError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindNotFound, Err: err}
}

// OtherError builds an Other-kind BackendError.
func OtherError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindOther, Err: err}
}

// Classify returns the Kind of err. Errors that are not BackendErrors are Other.
func Classify(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindOther
}

// FailureKind is the terminal outcome of an extraction.
type FailureKind string

// Terminal failure kinds.
const (
	AllBackendsExhausted FailureKind = "all_backends_exhausted"
	SchemaViolation      FailureKind = "schema_violation"
)

// ErrSchemaViolation marks a parsed response that does not satisfy the schema.
var ErrSchemaViolation = errors.New("schema violation")

// Outcome labels one backend attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeQuota    Outcome = "quota"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
	OutcomeInvalid  Outcome = "invalid"
)

// Attempt records what happened when one backend was tried.
type Attempt struct {
	Backend  string
	Outcome  Outcome
	Duration time.Duration
	Backoff  time.Duration
	Err      error
}

// Failure is returned when no backend produced a usable record.
type Failure struct {
	Kind     FailureKind
	Attempts []Attempt
}

func (f *Failure) Error() string {
	if len(f.Attempts) == 0 {
		return fmt.Sprintf("extraction failed: %s: no backends configured", f.Kind)
	}
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Backend, a.Outcome))
	}
	return fmt.Sprintf("extraction failed: %s after %d attempts [%s]",
		f.Kind, len(f.Attempts), strings.Join(parts, ", "))
}

// Is lets errors.Is match ErrSchemaViolation for SchemaViolation failures.
func (f *Failure) Is(target error) bool {
	return target == ErrSchemaViolation && f.Kind == SchemaViolation
}
