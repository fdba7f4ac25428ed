package nativeref

import (
	"errors"
	"strings"
)

// Common errors. Every error returned by this package wraps one of these and
// can be tested with errors.Is. All of them indicate a programming error in
// the caller; retrying the operation cannot succeed.
var (
	// ErrInvalidAddress indicates a zero address where a live one is required.
	ErrInvalidAddress = errors.New("nativeref: invalid address")

	// ErrUseAfterRelease indicates an operation on a handle that was released
	// or whose ownership was transferred.
	ErrUseAfterRelease = errors.New("nativeref: use after release")

	// ErrIndexOutOfRange indicates a batch array index outside [0, Len).
	ErrIndexOutOfRange = errors.New("nativeref: index out of range")

	// ErrLengthMismatch indicates two lengths or widths that must agree do not.
	ErrLengthMismatch = errors.New("nativeref: length mismatch")

	// ErrInvalidLength indicates a negative length or non-positive element width.
	ErrInvalidLength = errors.New("nativeref: invalid length")

	// ErrDoubleOwnershipTransfer indicates an owned handle was converted to a
	// shared reference a second time.
	ErrDoubleOwnershipTransfer = errors.New("nativeref: ownership already transferred")

	// ErrNotOwned indicates an operation that needs ownership on a borrowed handle.
	ErrNotOwned = errors.New("nativeref: handle does not own its resource")

	// ErrInvalidOwnership indicates an ownership value other than Owned or Borrowed.
	ErrInvalidOwnership = errors.New("nativeref: invalid ownership")

	// ErrNilCleanup indicates an owned handle was created without a cleanup action.
	ErrNilCleanup = errors.New("nativeref: owned handle requires a cleanup action")

	// ErrUnsupported indicates an accessor that does not implement the requested direction.
	ErrUnsupported = errors.New("nativeref: operation not supported")

	// ErrClosed indicates the reclaimer has been flushed, or a scope or pool closed.
	ErrClosed = errors.New("nativeref: reclaimer is closed")

	// ErrOutOfMemory indicates the backing allocator failed.
	ErrOutOfMemory = errors.New("nativeref: out of memory")
)

// Error describes a failed operation. Err is one of the package sentinels.
type Error struct {
	Op     string // Operation that failed, e.g. "BatchArray.Get"
	Err    error  // Sentinel describing the failure
	Detail string // Optional context such as the offending index
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("nativeref: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(strings.TrimPrefix(e.Err.Error(), "nativeref: "))
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error, detail string) error {
	return &Error{Op: op, Err: err, Detail: detail}
}

// IsUseAfterRelease reports whether err was caused by touching a released handle.
func IsUseAfterRelease(err error) bool {
	return errors.Is(err, ErrUseAfterRelease)
}
