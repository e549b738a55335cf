// Package errs implements the small, closed error taxonomy described in
// spec §7: Io, Corruption, Invalid, NotFound. Every layer wraps
// lower-level errors with fmt.Errorf("...: %w", err), exactly as
// tinySQL's pager package does, so errors.Is/errors.As keep working
// across layer boundaries while the outermost Kind stays stable.
package errs

import "fmt"

// Kind is the stable, closed set of error categories crossing the API
// boundary (§7). Embedders typically prefix messages with "[KIND]".
type Kind uint8

const (
	KindIO Kind = iota
	KindCorruption
	KindInvalid
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindCorruption:
		return "CORRUPTION"
	case KindInvalid:
		return "INVALID"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned across the storage core's
// public API.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Io wraps an OS-level failure.
func Io(msg string, err error) error { return &Error{Kind: KindIO, Msg: msg, Err: err} }

// Corruption reports a violated on-disk invariant.
func Corruption(msg string) error { return &Error{Kind: KindCorruption, Msg: msg} }

// Corruptionf reports a violated on-disk invariant with a wrapped cause.
func Corruptionf(msg string, err error) error {
	return &Error{Kind: KindCorruption, Msg: msg, Err: err}
}

// Invalid reports programmer/API misuse, recoverable by the caller.
func Invalid(msg string) error { return &Error{Kind: KindInvalid, Msg: msg} }

// NotFound reports a missing entity id.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
