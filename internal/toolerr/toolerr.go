// ABOUTME: Structured error taxonomy shared by every gateway tool.
// ABOUTME: Errors carry a machine-readable kind so callers can decide on retries.

package toolerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind classifies a tool failure.
type Kind string

const (
	// KindPolicyBlocked marks a command rejected by the safety guard. Never retryable.
	KindPolicyBlocked Kind = "policy_blocked"
	// KindPath marks a path that escapes the workspace or is malformed.
	KindPath Kind = "path_error"
	// KindIO marks a filesystem or process I/O failure.
	KindIO Kind = "io_error"
	// KindDomain marks a math/time domain violation such as division by zero.
	KindDomain Kind = "domain_error"
	// KindTimeout marks an operation that exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindSession marks an unavailable browser session.
	KindSession Kind = "session_error"
	// KindInvalidInput marks missing or malformed tool arguments.
	KindInvalidInput Kind = "invalid_input"
	// KindInternal marks an unexpected failure inside the gateway.
	KindInternal Kind = "internal_error"
)

// I/O sub-codes.
const (
	CodeNotFound         = "not_found"
	CodePermission       = "permission_denied"
	CodeNotDirectory     = "not_a_directory"
	CodeIsDirectory      = "is_a_directory"
	CodeAlreadyExists    = "already_exists"
	CodeOutsideWorkspace = "outside_workspace"
)

// Error is a tool failure that serializes to a compact JSON body.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Op      string `json:"op,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// JSON returns the error as a single-line JSON document.
func (e *Error) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"message":%q}`, e.Kind, e.Message)
	}
	return string(b)
}

// Retryable reports whether a caller may sensibly retry the same call.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindSession:
		return true
	default:
		return false
	}
}

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Blocked builds a policy_blocked error carrying the reserved exit status.
func Blocked(op, pattern string, status int) *Error {
	return &Error{
		Kind:    KindPolicyBlocked,
		Op:      op,
		Code:    pattern,
		Message: fmt.Sprintf("blocked dangerous command: %q detected in input", pattern),
		Status:  status,
	}
}

// Path builds a path_error.
func Path(op, code, message string) *Error {
	return &Error{Kind: KindPath, Op: op, Code: code, Message: message}
}

// Domain builds a domain_error.
func Domain(op, message string) *Error {
	return &Error{Kind: KindDomain, Op: op, Message: message}
}

// Missing builds an invalid_input error naming the missing field.
func Missing(op, field string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Field: field, Message: fmt.Sprintf("%q is required", field)}
}

// Invalid builds an invalid_input error for a malformed field.
func Invalid(op, field, message string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Field: field, Message: message}
}

// Timeout builds a timeout error naming the elapsed bound.
func Timeout(op string, bound fmt.Stringer, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: "timed out after " + bound.String(), Err: err}
}

// Session builds a session_error.
func Session(op string, err error) *Error {
	return &Error{Kind: KindSession, Op: op, Message: "browser session unavailable", Err: err}
}

// IO maps an os/fs error onto an io_error with a stable sub-code.
func IO(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if te, ok := as(op, err); ok {
		return te
	}
	code := ""
	msg := err.Error()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code, msg = CodeNotFound, "no such file or directory"
	case errors.Is(err, fs.ErrPermission):
		code, msg = CodePermission, "permission denied"
	case errors.Is(err, fs.ErrExist):
		code, msg = CodeAlreadyExists, "file already exists"
	case errors.Is(err, syscall.ENOTDIR):
		code, msg = CodeNotDirectory, "not a directory"
	case errors.Is(err, syscall.EISDIR):
		code, msg = CodeIsDirectory, "is a directory"
	}
	return &Error{Kind: KindIO, Op: op, Code: code, Message: msg, Err: err}
}

// From converts any error into a structured *Error. Context deadline errors
// become timeouts; unknown errors become internal errors.
func From(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if te, ok := as(op, err); ok {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Message: "deadline exceeded", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Op: op, Message: "request cancelled", Err: err}
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return IO(op, err)
	}
	return &Error{Kind: KindInternal, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or "" when err is not a tool error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) && te != nil {
		return te.Kind
	}
	return ""
}

// as extracts a tool error from err's chain. A nil *Error stored in a non-nil
// error interface is reported as an internal error so callers always get a
// usable value.
func as(op string, err error) (*Error, bool) {
	var te *Error
	if !errors.As(err, &te) {
		return nil, false
	}
	if te == nil {
		return &Error{Kind: KindInternal, Op: op, Message: "tool returned a nil error value"}, true
	}
	return te, true
}
