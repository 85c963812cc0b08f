package remote

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a remote failure for retry and escalation decisions.
type Kind int

const (
	// KindOther is an unclassified failure; treated as non-retryable.
	KindOther Kind = iota

	// KindTransient covers timeouts, 5xx-class responses and rate limits.
	// Retried with bounded exponential backoff at the point of call.
	KindTransient

	// KindPermissionDenied reflects a configuration problem (missing
	// delegation or grant); never retried automatically.
	KindPermissionDenied

	// KindNotFound means the referenced object or grantee does not exist
	// in the tenant. For access entries this is a per-entry failure.
	KindNotFound

	// KindTooLarge marks an object over the configured size ceiling.
	KindTooLarge

	// KindOwnershipNotTransferable means content landed but the owner
	// promotion was refused; the transfer still counts as successful.
	KindOwnershipNotTransferable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindTooLarge:
		return "object_too_large"
	case KindOwnershipNotTransferable:
		return "ownership_not_transferable"
	default:
		return "other"
	}
}

// Error wraps a remote failure with its classification and the failing
// operation name.
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

// NewError builds a classified remote error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified remote error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindOther; context cancellation is never retryable.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindOther
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindOther
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
