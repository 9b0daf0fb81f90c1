// Package overlay defines the protocol-agnostic capability surface and the
// single error type shared by the Chord and Pastry implementations.
package overlay

import (
	"errors"
	"fmt"
)

// Kind classifies an overlay-level failure. Operations never return a
// distinct exported error type per failure mode; callers use errors.Is/As
// against Error instead.
type Kind int

const (
	// KeyNotFound: update/delete/lookup against a key absent at the owning node.
	KeyNotFound Kind = iota
	// RoutingDiverged: a routed operation exceeded its hop budget.
	RoutingDiverged
	// OverlayEmpty: an operation was issued before any node joined.
	OverlayEmpty
	// IdFormat: a malformed identifier was supplied to an operation.
	IdFormat
	// DuplicateId: two nodes would share an identifier after a bounded
	// number of rehash attempts.
	DuplicateId
)

func (k Kind) String() string {
	switch k {
	case KeyNotFound:
		return "KeyNotFound"
	case RoutingDiverged:
		return "RoutingDiverged"
	case OverlayEmpty:
		return "OverlayEmpty"
	case IdFormat:
		return "IdFormat"
	case DuplicateId:
		return "DuplicateId"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by every overlay operation. It
// wraps an optional cause so errors.Is/errors.As chains through correctly.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("overlay: %s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("overlay: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, SomeKindSentinel) work by kind equality when the
// target is itself an *Error with no cause.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds an *Error for op with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error for op wrapping cause.
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var o *Error
	if errors.As(err, &o) {
		return o.Kind, true
	}
	return 0, false
}
