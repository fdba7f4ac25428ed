package nativeref

import (
	"fmt"
	"runtime"
)

// Address is an opaque native address. Only the native library interprets
// it; this package only tests it against 0, which means unassigned.
type Address uint64

// Ownership says whether a handle is responsible for freeing its resource.
type Ownership uint8

const (
	// Owned handles free their resource exactly once.
	Owned Ownership = iota + 1
	// Borrowed handles reference a resource owned elsewhere and never free it.
	Borrowed
)

// String returns the string representation of the ownership.
func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case Borrowed:
		return "borrowed"
	default:
		return fmt.Sprintf("Ownership(%d)", uint8(o))
	}
}

// CleanupFunc frees one native resource. It receives the address it was
// registered for and must not capture the Handle it is bound to; doing so
// keeps the handle reachable and disables automatic reclamation.
type CleanupFunc func(addr Address)

// releaseKind says which path released a handle; used for statistics.
type releaseKind uint8

const (
	releaseManual releaseKind = iota
	releaseAutomatic
	releaseTransfer
	releaseTeardown
)

// handleState is what both release paths operate on. It is allocated
// separately from Handle so the runtime cleanup can hold it without keeping
// the Handle reachable.
type handleState struct {
	guard   releaseGuard
	addr    Address
	cleanup CleanupFunc
	owner   *Reclaimer
	id      uint64

	// allocated marks buffers the reclaimer's allocator handed out. The
	// native library never sees them, so its teardown cannot free them.
	allocated bool
}

// release claims the state and runs the cleanup. It reports whether this
// call performed the release.
func (s *handleState) release(kind releaseKind) bool {
	if !s.guard.claim(stateReleased) {
		return false
	}
	if s.owner != nil {
		s.owner.forget(s, kind)
	}
	if s.cleanup != nil {
		s.cleanup(s.addr)
	}
	return true
}

// Handle references one native resource by address.
//
// An Owned handle frees its resource exactly once: when Release is called, or
// when the handle becomes unreachable and its Reclaimer processes it, or when
// the Reclaimer is flushed, whichever happens first. A Borrowed handle never
// frees anything.
//
// Release is safe to call from any goroutine, any number of times. Other
// operations on the resource itself are not synchronized by Handle.
type Handle struct {
	st        *handleState
	ownership Ownership
	stop      runtime.Cleanup
	tracked   bool
}

// Borrow wraps an address owned elsewhere, such as a sub-object reached
// through its parent. The zero address is allowed and means "no object".
func Borrow(addr Address) *Handle {
	return &Handle{
		st:        &handleState{addr: addr},
		ownership: Borrowed,
	}
}

// Ownership returns whether the handle owns its resource.
func (h *Handle) Ownership() Ownership {
	return h.ownership
}

// IsLive reports whether the handle has been neither released nor transferred.
func (h *Handle) IsLive() bool {
	if h == nil || h.st == nil {
		return false
	}
	return h.st.guard.load() == stateLive
}

// Address returns the native address. It fails with ErrUseAfterRelease once
// the handle is no longer live; the address is never handed out afterwards.
func (h *Handle) Address() (Address, error) {
	return h.liveAddress("Handle.Address")
}

// Release frees the resource if this handle owns it and no other path has
// already done so. Calls after the first are no-ops.
func (h *Handle) Release() {
	if h == nil || h.st == nil {
		return
	}
	if h.st.release(releaseManual) && h.tracked {
		h.stop.Stop()
	}
	runtime.KeepAlive(h)
}

// Close calls Release. It implements io.Closer and always returns nil.
func (h *Handle) Close() error {
	h.Release()
	return nil
}

// String renders the handle for diagnostics.
func (h *Handle) String() string {
	if h == nil || h.st == nil {
		return "Handle(nil)"
	}
	return fmt.Sprintf("Handle(%#x, %s, %s)", uint64(h.st.addr), h.ownership, stateString(h.st.guard.load()))
}

func (h *Handle) liveAddress(op string) (Address, error) {
	if h == nil || h.st == nil {
		return 0, newError(op, ErrInvalidAddress, "nil handle")
	}
	if s := h.st.guard.load(); s != stateLive {
		return 0, newError(op, ErrUseAfterRelease, fmt.Sprintf("handle is %s", stateString(s)))
	}
	return h.st.addr, nil
}

// assignedAddress is liveAddress that also rejects the zero address.
func (h *Handle) assignedAddress(op string) (Address, error) {
	addr, err := h.liveAddress(op)
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, newError(op, ErrInvalidAddress, "handle has no address")
	}
	return addr, nil
}

// transfer consumes an owned handle's exclusive ownership without running its
// cleanup. The resource is then kept alive by whoever the caller hands the
// address to.
func (h *Handle) transfer(op string) (Address, error) {
	if h == nil || h.st == nil {
		return 0, newError(op, ErrInvalidAddress, "nil handle")
	}
	if h.ownership != Owned {
		return 0, newError(op, ErrNotOwned, "")
	}
	if h.st.guard.claim(stateTransferred) {
		if h.st.owner != nil {
			h.st.owner.forget(h.st, releaseTransfer)
		}
		if h.tracked {
			h.stop.Stop()
		}
		runtime.KeepAlive(h)
		return h.st.addr, nil
	}
	if h.st.guard.load() == stateTransferred {
		return 0, newError(op, ErrDoubleOwnershipTransfer, "")
	}
	return 0, newError(op, ErrUseAfterRelease, "")
}
