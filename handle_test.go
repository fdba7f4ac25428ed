package nativeref

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obinnaokechukwu/nativeref/offheap"
)

// freeRecorder counts cleanup calls per address.
type freeRecorder struct {
	mu     sync.Mutex
	counts map[Address]int
	total  atomic.Int64
}

func newFreeRecorder() *freeRecorder {
	return &freeRecorder{counts: make(map[Address]int)}
}

func (f *freeRecorder) free(addr Address) {
	f.mu.Lock()
	f.counts[addr]++
	f.mu.Unlock()
	f.total.Add(1)
}

func (f *freeRecorder) count(addr Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[addr]
}

// overfreed returns addresses freed more than once.
func (f *freeRecorder) overfreed() []Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Address
	for a, n := range f.counts {
		if n > 1 {
			out = append(out, a)
		}
	}
	return out
}

func newTestReclaimer(t *testing.T, cfg Config) *Reclaimer {
	t.Helper()
	if cfg.Allocator == nil {
		cfg.Allocator = offheap.Heap()
	}
	r := NewReclaimer(cfg)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Flush(ctx)
	})
	return r
}

// waitFor runs the GC until cond holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
}

func TestOwnedReleaseRunsCleanupOnce(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rec := newFreeRecorder()

	h, err := r.Own(0x1000, rec.free)
	if err != nil {
		t.Fatalf("Own: %v", err)
	}
	if h.Ownership() != Owned || !h.IsLive() {
		t.Fatalf("new handle = %v", h)
	}

	h.Release()
	h.Release()
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rec.count(0x1000); got != 1 {
		t.Fatalf("cleanup ran %d times, want 1", got)
	}
	if h.IsLive() {
		t.Fatal("handle still live after Release")
	}
}

func TestConcurrentReleaseRunsCleanupOnce(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rec := newFreeRecorder()

	for round := 0; round < 100; round++ {
		addr := Address(0x1000 + round*0x10)
		h, err := r.Own(addr, rec.free)
		if err != nil {
			t.Fatalf("Own: %v", err)
		}
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Release()
			}()
		}
		wg.Wait()
		if got := rec.count(addr); got != 1 {
			t.Fatalf("round %d: cleanup ran %d times", round, got)
		}
	}
}

func TestBorrowedNeverFrees(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	rec := newFreeRecorder()

	h, err := r.NewHandle(0x2000, Borrowed, rec.free)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	h.Release()
	h.Release()
	if rec.total.Load() != 0 {
		t.Fatal("borrowed handle ran a cleanup")
	}
	if r.Stats().Tracked != 0 {
		t.Fatal("borrowed handle was tracked")
	}

	for i := 0; i < 100; i++ {
		r.Borrow(Address(0x3000 + i))
	}
	runtime.GC()
	runtime.GC()
	if rec.total.Load() != 0 {
		t.Fatal("dropped borrowed handles ran a cleanup")
	}
}

func TestBorrowZeroAddress(t *testing.T) {
	h := Borrow(0)
	addr, err := h.Address()
	if err != nil || addr != 0 {
		t.Fatalf("Address() = %#x, %v", addr, err)
	}
	if _, err := h.assignedAddress("test"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("assignedAddress on zero = %v, want ErrInvalidAddress", err)
	}
}

func TestNewHandleValidation(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	noop := func(Address) {}

	tests := []struct {
		name      string
		addr      Address
		ownership Ownership
		cleanup   CleanupFunc
		want      error
	}{
		{"owned zero address", 0, Owned, noop, ErrInvalidAddress},
		{"owned nil cleanup", 0x10, Owned, nil, ErrNilCleanup},
		{"bad ownership", 0x10, Ownership(9), noop, ErrInvalidOwnership},
		{"zero ownership", 0x10, Ownership(0), noop, ErrInvalidOwnership},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.NewHandle(tt.addr, tt.ownership, tt.cleanup)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if h != nil {
				t.Fatal("handle returned with error")
			}
		})
	}
}

func TestAddressAfterRelease(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	h, err := r.Own(0x4000, func(Address) {})
	if err != nil {
		t.Fatalf("Own: %v", err)
	}
	if addr, err := h.Address(); err != nil || addr != 0x4000 {
		t.Fatalf("Address() = %#x, %v", addr, err)
	}

	h.Release()
	addr, err := h.Address()
	if !IsUseAfterRelease(err) {
		t.Fatalf("Address() after release err = %v", err)
	}
	if addr != 0 {
		t.Fatalf("Address() after release leaked %#x", addr)
	}
}

func TestHandleString(t *testing.T) {
	r := newTestReclaimer(t, Config{})
	h, _ := r.Own(0xabc, func(Address) {})
	if got := h.String(); got != "Handle(0xabc, owned, live)" {
		t.Errorf("String() = %q", got)
	}
	h.Release()
	if !strings.Contains(h.String(), "released") {
		t.Errorf("String() = %q", h.String())
	}
	if got := Borrow(0x1).String(); got != "Handle(0x1, borrowed, live)" {
		t.Errorf("String() = %q", got)
	}

	var nilHandle *Handle
	if nilHandle.String() != "Handle(nil)" {
		t.Errorf("nil String() = %q", nilHandle.String())
	}
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	h.Release()
	if h.IsLive() {
		t.Fatal("nil handle reported live")
	}
	if _, err := h.Address(); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("Address() on nil = %v", err)
	}
}

func TestOwnershipString(t *testing.T) {
	if Owned.String() != "owned" || Borrowed.String() != "borrowed" {
		t.Fatal("unexpected ownership names")
	}
	if Ownership(7).String() != "Ownership(7)" {
		t.Fatalf("got %q", Ownership(7).String())
	}
}

func TestReleaseGuardSingleWinner(t *testing.T) {
	var g releaseGuard
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := stateReleased
			if i%2 == 0 {
				to = stateTransferred
			}
			if g.claim(to) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("%d winners, want 1", wins.Load())
	}
	if g.load() == stateLive {
		t.Fatal("guard still live")
	}
}
