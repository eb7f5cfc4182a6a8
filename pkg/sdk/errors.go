package sdk

import (
	"errors"
	"fmt"
)

// ErrKind classifies an error into the system's error taxonomy. Each kind
// carries a distinct recovery policy; IsRetryable and IsFatal classify them.
type ErrKind string

const (
	// ErrConfig is a fatal misconfiguration detected at startup.
	ErrConfig ErrKind = "config"
	// ErrSandboxDeny is a policy denial raised by the sandbox layer.
	// It is recovered locally and surfaced to the driving LLM for retry.
	ErrSandboxDeny ErrKind = "sandbox_deny"
	// ErrRemoteTransient is a retryable failure from a remote dependency.
	ErrRemoteTransient ErrKind = "remote_transient"
	// ErrRemoteFatal is a non-retryable failure from a remote dependency.
	ErrRemoteFatal ErrKind = "remote_fatal"
	// ErrSchema is a structured-output parse/validation failure.
	ErrSchema ErrKind = "schema"
	// ErrValidation is a synchronous pre-write validation failure.
	ErrValidation ErrKind = "validation"
	// ErrNotFound indicates an explicit absence, not an exceptional state.
	ErrNotFound ErrKind = "not_found"
	// ErrCancelled indicates cooperative cancellation at a stage or
	// iteration boundary.
	ErrCancelled ErrKind = "cancelled"
)

// Error is the common error type carrying one of the ErrKind values plus
// enough context for callers to decide how to react.
type Error struct {
	Kind    ErrKind
	Op      string // the operation that failed, e.g. "vectorstore.insert"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, sdk.KindSentinel(sdk.ErrNotFound)) style checks
// against the Kind.
func (e *Error) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

// kindSentinel lets callers write errors.Is(err, sdk.KindSentinel(sdk.ErrNotFound)).
type kindSentinel struct{ kind ErrKind }

func (k *kindSentinel) Error() string { return string(k.kind) }

// KindSentinel returns a comparable sentinel for errors.Is checks against a kind.
func KindSentinel(kind ErrKind) error { return &kindSentinel{kind: kind} }

// NewError builds an *Error for the given kind.
func NewError(kind ErrKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// IsRetryable reports whether the error's kind is one the caller should
// retry (possibly with backoff) rather than surface or abort.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ErrRemoteTransient
	}
	return false
}

// IsFatal reports whether the error's kind should abort the current run.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ErrConfig || e.Kind == ErrRemoteFatal
	}
	return false
}
