package pipeline

import (
	"errors"
	"fmt"

	"github.com/yungbote/databanana-backend/internal/domain"
)

type Kind string

const (
	KindInvalidArgument      Kind = "InvalidArgument"
	KindInsufficientBalance  Kind = "InsufficientBalance"
	KindNotFound             Kind = "NotFound"
	KindUpstream             Kind = "UpstreamError"
	KindTransientPoll        Kind = "TransientPollError"
	KindRetryBudgetExhausted Kind = "RetryBudgetExhausted"
)

// Error is the single error shape steps return. Op names the step.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. Domain sentinels map onto their kinds and anything
// unrecognized is treated as an upstream failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, domain.ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, domain.ErrNotFound):
		return KindNotFound
	default:
		return KindUpstream
	}
}

// fromStore wraps a collaborator error, keeping its domain classification.
func fromStore(op string, err error) *Error {
	return newError(KindOf(err), op, err)
}

// IsClientError reports whether err was caused by the caller and left no side effects.
func IsClientError(err error) bool {
	return IsClientKind(KindOf(err))
}

func IsClientKind(k Kind) bool {
	switch k {
	case KindInvalidArgument, KindInsufficientBalance, KindNotFound:
		return true
	}
	return false
}
