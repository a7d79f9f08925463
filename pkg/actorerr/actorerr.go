// Package actorerr is the error taxonomy shared by the analyzer, actor
// pool, and lifecycle runner, adapted from pkg/errors/error_handling.go's
// category+severity model and trimmed to the kinds spec.md §7 names. Each
// kind is a distinct *Error value satisfying errors.Is/errors.As rather
// than a string-matched code, so callers branch on Kind instead of
// parsing messages.
package actorerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from spec.md §7's table.
type Kind string

const (
	KindAnalyzerFatal    Kind = "analyzer_fatal"
	KindSubPoolStartFail Kind = "subpool_start_failed"
	KindSubPoolDied      Kind = "subpool_died"
	KindActorMissing     Kind = "actor_missing"
	KindMessageDelivery  Kind = "message_delivery"
	KindDecrefRace       Kind = "decref_race"
	KindOperatorRuntime  Kind = "operator_runtime"
	KindCancellation     Kind = "cancellation"
)

// Retryable reports the default retry policy for a kind, per spec.md §7's
// Policy column. Callers may still override this per error instance.
func (k Kind) Retryable() bool {
	switch k {
	case KindSubPoolDied, KindMessageDelivery:
		return true
	default:
		return false
	}
}

// Error is the concrete error type every kind above is wrapped in.
type Error struct {
	Kind      Kind
	Op        string // operation in progress, e.g. "Analyze", "SubPool.Send"
	Address   string // band/subpool address, when applicable
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind, ignoring Op/Address/Cause — so errors.Is(err,
// actorerr.New(KindActorMissing, "", "")) finds "is this an actor-missing
// error" regardless of which actor or address it names.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of kind for op, wrapping cause if non-nil.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause, Retryable: kind.Retryable()}
}

// WithAddress attaches the band/subpool address an error occurred against.
func (e *Error) WithAddress(address string) *Error {
	e.Address = address
	return e
}

// Sentinels for errors.Is checks that don't need an Op/Cause, mirroring
// the original's ActorNotExist/SendMessageFailed distinct exception types.
var (
	ErrActorNotExist     = New(KindActorMissing, "", nil)
	ErrSendMessageFailed = New(KindMessageDelivery, "", nil)
)

// AnalyzerFatal wraps a fatal analyzer invariant violation — e.g. more
// than one virtual operand surviving into a single color class.
func AnalyzerFatal(op string, cause error) *Error {
	return New(KindAnalyzerFatal, op, cause)
}

// SubPoolStartFailed wraps a failure to bring a subpool's loop up.
func SubPoolStartFailed(address string, cause error) *Error {
	return New(KindSubPoolStartFail, "StartSubPool", cause).WithAddress(address)
}

// SubPoolDied wraps a monitor-detected subpool crash.
func SubPoolDied(address string, cause error) *Error {
	return New(KindSubPoolDied, "SubPool", cause).WithAddress(address)
}

// ActorNotExist reports a message sent to an actor id no subpool hosts.
func ActorNotExist(address string, id string) *Error {
	return New(KindActorMissing, "Send", fmt.Errorf("actor %q not found", id)).WithAddress(address)
}

// SendMessageFailed wraps a transport-level delivery failure.
func SendMessageFailed(address string, cause error) *Error {
	return New(KindMessageDelivery, "Send", cause).WithAddress(address)
}

// DecrefRace classifies errors the lifecycle runner should swallow:
// session gone, connection lost, key already released — best-effort
// reclamation, never surfaced to a caller.
func DecrefRace(cause error) *Error {
	return New(KindDecrefRace, "Decref", cause)
}

// IsSwallowable reports whether err represents best-effort-reclamation
// noise the lifecycle runner should treat as success rather than propagate
// — the Go analogue of the original's bare
// (RuntimeError, ConnectionError, KeyError, ActorNotExist) catch.
func IsSwallowable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Kind {
	case KindDecrefRace, KindActorMissing:
		return true
	default:
		return false
	}
}

// OperatorRuntime wraps a user operator's runtime failure, captured into a
// task result rather than propagated to the caller directly.
func OperatorRuntime(op string, cause error) *Error {
	return New(KindOperatorRuntime, op, cause)
}

// Cancellation marks a user-initiated cancellation, never treated as a
// retryable error even though it shares the Error type for uniform
// handling at call sites.
func Cancellation(op string) *Error {
	return New(KindCancellation, op, nil)
}
