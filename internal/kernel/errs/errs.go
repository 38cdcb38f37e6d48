// Package errs defines the error taxonomy shared by every stage: whether a
// failure is worth retrying, terminal-but-quarantined, or simply poison.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the purposes of the bus retry contract.
type Kind int

const (
	// Transient failures may succeed on redelivery (I/O, upstream 5xx,
	// timeouts, throttling). The runtime maps these to a 5xx reply.
	Transient Kind = iota
	// Permanent failures can never succeed on retry (schema violations,
	// malformed images, cross-field arithmetic mismatches). The stage
	// quarantines the offending data itself, then the runtime acks.
	Permanent
	// Poison marks an envelope that could not even be parsed. Logged and
	// acked; never retried.
	Poison
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Poison:
		return "poison"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind, so callers up the stack can
// branch on retryability without string-matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transientf wraps a formatted error as Transient-kind.
func Transientf(format string, args ...any) error {
	return &Error{Kind: Transient, Err: fmt.Errorf(format, args...)}
}

// Permanentf wraps a formatted error as Permanent-kind.
func Permanentf(format string, args ...any) error {
	return &Error{Kind: Permanent, Err: fmt.Errorf(format, args...)}
}

// Poisonf wraps a formatted error as Poison-kind.
func Poisonf(format string, args ...any) error {
	return &Error{Kind: Poison, Err: fmt.Errorf(format, args...)}
}

// WrapTransient wraps an existing error as Transient, preserving it via
// Unwrap. Returns nil if err is nil.
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Transient, Err: err}
}

// WrapPermanent wraps an existing error as Permanent. Returns nil if err is
// nil.
func WrapPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Permanent, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Transient for any error
// that wasn't produced by this package — an unclassified failure is safer
// to retry than to silently quarantine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}
