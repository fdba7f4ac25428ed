package nativeref

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingRC is a RefCounter whose objects start at zero references and are
// freed when the count drops back to zero.
type countingRC struct {
	mu    sync.Mutex
	refs  map[Address]int
	freed map[Address]int
}

func newCountingRC() *countingRC {
	return &countingRC{refs: make(map[Address]int), freed: make(map[Address]int)}
}

func (c *countingRC) Retain(addr Address) {
	c.mu.Lock()
	c.refs[addr]++
	c.mu.Unlock()
}

func (c *countingRC) Release(addr Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[addr]--
	if c.refs[addr] == 0 {
		c.freed[addr]++
	}
}

func (c *countingRC) state(addr Address) (refs, freed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[addr], c.freed[addr]
}

func TestSharedCloneAndRelease(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rc := newCountingRC()
	rec := newFreeRecorder()

	h, _ := r.Own(0x100, rec.free)
	first, err := FromOwned(h, rc)
	if err != nil {
		t.Fatalf("FromOwned: %v", err)
	}
	if h.IsLive() {
		t.Fatal("source handle still live after transfer")
	}

	const k = 5
	refs := []*SharedRef{first}
	for i := 0; i < k; i++ {
		c, err := first.Clone()
		if err != nil {
			t.Fatalf("Clone: %v", err)
		}
		refs = append(refs, c)
	}
	if n, _ := rc.state(0x100); n != k+1 {
		t.Fatalf("refs = %d, want %d", n, k+1)
	}

	for i, s := range refs {
		if _, freed := rc.state(0x100); freed != 0 {
			t.Fatalf("freed before release %d", i)
		}
		s.Release()
		s.Release()
	}
	if n, freed := rc.state(0x100); n != 0 || freed != 1 {
		t.Fatalf("refs = %d, freed = %d; want 0, 1", n, freed)
	}
	if rec.total.Load() != 0 {
		t.Fatal("transferred handle ran its own cleanup")
	}
	if got := r.Stats().Transferred; got != 1 {
		t.Fatalf("Transferred = %d, want 1", got)
	}
}

func TestFromOwnedErrors(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rc := newCountingRC()

	h, _ := r.Own(0x200, func(Address) {})
	if _, err := FromOwned(h, rc); err != nil {
		t.Fatalf("FromOwned: %v", err)
	}
	if _, err := FromOwned(h, rc); !errors.Is(err, ErrDoubleOwnershipTransfer) {
		t.Fatalf("second FromOwned = %v, want ErrDoubleOwnershipTransfer", err)
	}
	if _, err := h.Address(); !IsUseAfterRelease(err) {
		t.Fatalf("Address on transferred handle = %v", err)
	}

	released, _ := r.Own(0x300, func(Address) {})
	released.Release()
	if _, err := FromOwned(released, rc); !errors.Is(err, ErrUseAfterRelease) {
		t.Fatalf("FromOwned(released) = %v", err)
	}

	if _, err := FromOwned(Borrow(0x400), rc); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("FromOwned(borrowed) = %v", err)
	}

	owned, _ := r.Own(0x500, func(Address) {})
	if _, err := FromOwned(owned, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("FromOwned(nil rc) = %v", err)
	}
	if !owned.IsLive() {
		t.Fatal("failed FromOwned consumed the handle")
	}
}

func TestTransferredHandleReleaseIsNoop(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rc := newCountingRC()
	rec := newFreeRecorder()

	h, _ := r.Own(0x600, rec.free)
	s, _ := FromOwned(h, rc)
	h.Release()
	if rec.total.Load() != 0 {
		t.Fatal("Release on transferred handle ran cleanup")
	}
	if !s.IsLive() {
		t.Fatal("shared ref affected by source Release")
	}
	s.Release()
}

func TestCloneAfterRelease(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rc := newCountingRC()

	h, _ := r.Own(0x700, func(Address) {})
	s, _ := FromOwned(h, rc)
	s.Release()

	if _, err := s.Clone(); !errors.Is(err, ErrUseAfterRelease) {
		t.Fatalf("Clone after release = %v", err)
	}
	if _, err := s.Address(); !errors.Is(err, ErrUseAfterRelease) {
		t.Fatalf("Address after release = %v", err)
	}
	if _, freed := rc.state(0x700); freed != 1 {
		t.Fatalf("freed = %d, want 1", freed)
	}
}

func TestSharedReclaimedWhenUnreachable(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rc := newCountingRC()

	func() {
		h, _ := r.Own(0x800, func(Address) {})
		s, _ := FromOwned(h, rc)
		for i := 0; i < 3; i++ {
			if _, err := s.Clone(); err != nil {
				t.Fatalf("Clone: %v", err)
			}
		}
	}()

	waitFor(t, 10*time.Second, func() bool {
		_, freed := rc.state(0x800)
		return freed == 1
	})
}

func TestSharedReleasedAtFlush(t *testing.T) {
	r := NewReclaimer(Config{})
	rc := newCountingRC()

	h, _ := r.Own(0x900, func(Address) {})
	s, _ := FromOwned(h, rc)
	c, _ := s.Clone()

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, freed := rc.state(0x900); n != 0 || freed != 1 {
		t.Fatalf("refs = %d, freed = %d after Flush", n, freed)
	}
	s.Release()
	c.Release()
	if n, _ := rc.state(0x900); n != 0 {
		t.Fatalf("Release after Flush changed refs to %d", n)
	}

	h2, _ := NewReclaimer(Config{}).Own(0xa00, func(Address) {})
	r2 := h2.st.owner
	r2.Flush(context.Background())
	if _, err := FromOwned(h2, rc); !errors.Is(err, ErrClosed) {
		t.Fatalf("FromOwned after Flush = %v, want ErrClosed", err)
	}
}

func TestSharedString(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	h, _ := r.Own(0xb00, func(Address) {})
	s, _ := FromOwned(h, newCountingRC())
	if got := s.String(); got != "SharedRef(Handle(0xb00, owned, live))" {
		t.Fatalf("String() = %q", got)
	}
	if s.Handle() == nil {
		t.Fatal("Handle() is nil")
	}
	s.Close()
}
