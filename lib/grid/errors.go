package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the cache.
	RetCInvalidOperation                    // 3: Invalid operation or argument.
	RetCCompileError                        // 4: Query could not be compiled.
	RetCInvocationError                     // 5: Member unreachable or service unavailable.
	RetCTimeout                             // 6: Deadline expired.
	RetCPerEntryError                       // 7: A processor failed for one entry.
)

var codeNames = map[RetCode]string{
	RetCSuccess:              "Success",
	RetCInternalError:        "InternalError",
	RetCUnsupportedOperation: "UnsupportedOperation",
	RetCInvalidOperation:     "InvalidOperation",
	RetCCompileError:         "CompileError",
	RetCInvocationError:      "InvocationError",
	RetCTimeout:              "Timeout",
	RetCPerEntryError:        "PerEntryError",
}

func (c RetCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "Unknown"
}

// Sentinels to match error kinds with errors.Is.
var (
	ErrCompile     = &Error{Code: RetCCompileError}
	ErrInvocation  = &Error{Code: RetCInvocationError}
	ErrTimeout     = &Error{Code: RetCTimeout}
	ErrPerEntry    = &Error{Code: RetCPerEntryError}
	ErrInvalid     = &Error{Code: RetCInvalidOperation}
	ErrUnsupported = &Error{Code: RetCUnsupportedOperation}
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code with enough context to act on it in logs.
type Error struct {
	Code   RetCode // The return code
	Msg    string  // The error message
	Query  string  // Query text, if a query was involved
	Target string  // Invocation target, if a remote call was involved
	Err    error   // Cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "GridError (code %s)", e.Code)
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Query != "" {
		fmt.Fprintf(&sb, " [query %q]", e.Query)
	}
	if e.Target != "" {
		fmt.Fprintf(&sb, " [target %s]", e.Target)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrTimeout)
// works for every timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether retrying may succeed. Invocation errors
// guarantee nothing ran; timeouts leave the decision to the caller.
func (e *Error) Retryable() bool {
	return e.Code == RetCInvocationError || e.Code == RetCTimeout
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// CompileError reports a query that could not be turned into a predicate.
func CompileError(query string, cause error) *Error {
	return &Error{Code: RetCCompileError, Msg: "failed to compile query", Query: query, Err: cause}
}

// InvocationError reports a target that could not be reached.
func InvocationError(target string, cause error) *Error {
	return &Error{Code: RetCInvocationError, Msg: "invocation failed", Target: target, Err: cause}
}

// TimeoutError reports an expired deadline.
func TimeoutError(target string, cause error) *Error {
	return &Error{Code: RetCTimeout, Msg: "deadline exceeded", Target: target, Err: cause}
}

// PerEntryError reports a processor failure for one key.
func PerEntryError(keyID string, cause error) *Error {
	return &Error{Code: RetCPerEntryError, Msg: "processor failed for key " + keyID, Err: cause}
}

// CodeOf returns the code of err: RetCSuccess for nil, the code of a
// wrapped *Error, RetCInternalError otherwise.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return RetCInternalError
}

// Classify converts an arbitrary error into an *Error. Context errors become
// timeouts or invocation errors, anything unclassified becomes an internal
// error. Nil stays nil.
func Classify(err error, target string) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError(target, err)
	case errors.Is(err, context.Canceled):
		return InvocationError(target, err)
	default:
		return &Error{Code: RetCInternalError, Msg: "internal error", Target: target, Err: err}
	}
}

// FromCode rebuilds an error received over the wire.
func FromCode(code RetCode, msg string) error {
	if code == RetCSuccess {
		return nil
	}
	return &Error{Code: code, Msg: msg}
}
