package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// PipelineError is the error type every odin component returns for a fatal
// condition. Its Kind lets the coordinator and the CLI react by category
// (e.g. retry-never, surface-to-user, map-to-exit-code) without string
// matching, while Cause carries the underlying stdlib/3rd-party error.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Cause_  error
}

func NewPipelineError(kind ErrorKind, cause error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause_:  cause,
	}
}

func (e *PipelineError) Error() string {
	if e.Cause_ != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause_)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Cause lets common.Cause() and errors.Cause() unwrap to the underlying error.
func (e *PipelineError) Cause() error { return e.Cause_ }

func (e *PipelineError) Unwrap() error { return e.Cause_ }

// Is reports equality by Kind, which is the granularity callers care about:
// errors.Is(err, &PipelineError{Kind: EErrorKind.HeaderCorrupt()}) matches any
// corrupt-header error regardless of its message or wrapped cause.
func (e *PipelineError) Is(target error) bool {
	other, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *PipelineError, and EErrorKind.None() otherwise.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return EErrorKind.None()
}

// PanicIfErr preserves a stack trace for truly-unexpected failures (e.g. a
// malformed state file odin itself wrote); callers pick this over a returned
// error only at points where continuing would corrupt subsequent writes.
func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}
