package nativeref

import (
	"fmt"
	"runtime"
)

// RefCounter is the native library's reference counting entry points for
// one kind of shared object. Release frees the object when the count
// reaches zero.
type RefCounter interface {
	Retain(addr Address)
	Release(addr Address)
}

// SharedRef is one counted reference to a native object that several
// independent owners keep alive. Each SharedRef holds one native reference
// and gives it back exactly once, through the same release guard as Handle.
//
// Whether the object was actually freed by a given Release is known only to
// the native side.
type SharedRef struct {
	h  *Handle
	rc RefCounter
}

// FromOwned converts an owned handle into the first shared reference. The
// handle is consumed: it is no longer live and its own cleanup never runs.
//
// It fails with ErrDoubleOwnershipTransfer if h was already converted,
// ErrUseAfterRelease if h was released, and ErrNotOwned if h is borrowed.
func FromOwned(h *Handle, rc RefCounter) (*SharedRef, error) {
	const op = "FromOwned"
	if rc == nil {
		return nil, newError(op, ErrUnsupported, "nil RefCounter")
	}
	if h != nil && h.st != nil && h.st.owner != nil && h.st.owner.isClosed() {
		return nil, newError(op, ErrClosed, "")
	}
	addr, err := h.transfer(op)
	if err != nil {
		return nil, err
	}
	rc.Retain(addr)
	return newShared(h.st.owner, addr, rc)
}

func newShared(r *Reclaimer, addr Address, rc RefCounter) (*SharedRef, error) {
	h, err := r.Own(addr, rc.Release)
	if err != nil {
		// Give back the reference taken for this wrapper.
		rc.Release(addr)
		return nil, err
	}
	return &SharedRef{h: h, rc: rc}, nil
}

// Clone takes another native reference and returns it as an independent
// SharedRef that must be released on its own.
func (s *SharedRef) Clone() (*SharedRef, error) {
	const op = "SharedRef.Clone"
	if s == nil {
		return nil, newError(op, ErrInvalidAddress, "nil SharedRef")
	}
	addr, err := s.h.liveAddress(op)
	if err != nil {
		return nil, err
	}
	s.rc.Retain(addr)
	c, err := newShared(s.h.st.owner, addr, s.rc)
	runtime.KeepAlive(s)
	return c, err
}

// Release gives back this reference. Calls after the first are no-ops.
func (s *SharedRef) Release() {
	if s == nil {
		return
	}
	s.h.Release()
}

// Close calls Release. It implements io.Closer and always returns nil.
func (s *SharedRef) Close() error {
	s.Release()
	return nil
}

// IsLive reports whether this reference has not been released.
func (s *SharedRef) IsLive() bool {
	return s != nil && s.h.IsLive()
}

// Address returns the shared object's address, or ErrUseAfterRelease once
// this reference is released.
func (s *SharedRef) Address() (Address, error) {
	if s == nil {
		return 0, newError("SharedRef.Address", ErrInvalidAddress, "nil SharedRef")
	}
	return s.h.liveAddress("SharedRef.Address")
}

// Handle returns the handle holding this reference. Releasing it releases
// the reference.
func (s *SharedRef) Handle() *Handle {
	return s.h
}

// String renders the reference for diagnostics.
func (s *SharedRef) String() string {
	if s == nil {
		return "SharedRef(nil)"
	}
	return fmt.Sprintf("SharedRef(%s)", s.h)
}
