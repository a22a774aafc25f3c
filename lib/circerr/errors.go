// Package circerr defines the error classes surfaced by the circuit data plane.
//
// Every error produced by go-circuit belongs to exactly one class:
//   - ErrProtocolViolation: the peer sent something inconsistent. The circuit
//     is expected to be torn down.
//   - ErrInternal: one of our own invariants broke. Reported, never panicked on.
//   - ErrExhausted / ErrWouldBlock: recoverable resource conditions.
//   - ErrShutdown: the reactor (or one of its halves) has stopped.
//
// Use errors.Is or the Is* predicates to classify an error; the oops code
// attached to each error carries the same class for log consumers.
package circerr

import (
	"errors"

	"github.com/samber/oops"
)

var (
	// ErrProtocolViolation marks peer-caused inconsistencies.
	ErrProtocolViolation = errors.New("circuit protocol violation")

	// ErrInternal marks a broken local invariant ("internal bug").
	ErrInternal = errors.New("internal bug")

	// ErrExhausted marks a resource that ran out, such as the stream id space.
	ErrExhausted = errors.New("resource exhausted")

	// ErrWouldBlock marks transient backpressure.
	ErrWouldBlock = errors.New("operation would block")

	// ErrShutdown is returned once the reactor is no longer running.
	ErrShutdown = errors.New("circuit reactor shut down")
)

const (
	codeProtocol  = "protocol_violation"
	codeInternal  = "internal_bug"
	codeExhausted = "resource_exhausted"
	codeBlocked   = "would_block"
	codeShutdown  = "shutdown"
)

// Protocolf reports a protocol violation detected in the given domain.
func Protocolf(domain, format string, args ...any) error {
	return oops.Code(codeProtocol).In(domain).Wrapf(ErrProtocolViolation, format, args...)
}

// Bugf reports a violated internal invariant.
func Bugf(domain, format string, args ...any) error {
	return oops.Code(codeInternal).In(domain).Wrapf(ErrInternal, format, args...)
}

// Exhaustedf reports an exhausted resource.
func Exhaustedf(domain, format string, args ...any) error {
	return oops.Code(codeExhausted).In(domain).Wrapf(ErrExhausted, format, args...)
}

// WouldBlockf reports transient backpressure.
func WouldBlockf(domain, format string, args ...any) error {
	return oops.Code(codeBlocked).In(domain).Wrapf(ErrWouldBlock, format, args...)
}

// Shutdownf reports that a reactor task stopped.
func Shutdownf(domain, format string, args ...any) error {
	return oops.Code(codeShutdown).In(domain).Wrapf(ErrShutdown, format, args...)
}

// IsProtocol reports whether err is (or wraps) a protocol violation.
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocolViolation) }

// IsBug reports whether err is (or wraps) an internal error.
func IsBug(err error) bool { return errors.Is(err, ErrInternal) }

// IsExhausted reports whether err is (or wraps) a resource exhaustion error.
func IsExhausted(err error) bool { return errors.Is(err, ErrExhausted) }

// IsShutdown reports whether err is (or wraps) a shutdown error.
func IsShutdown(err error) bool { return errors.Is(err, ErrShutdown) }
