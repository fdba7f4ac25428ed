package nativeref

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/obinnaokechukwu/nativeref/internal/handles"
	"github.com/obinnaokechukwu/nativeref/offheap"
	"go.uber.org/zap"
)

// Config configures a Reclaimer.
type Config struct {
	// Logger receives lifecycle and failure logs. Defaults to Logger().
	Logger *zap.Logger

	// Teardown is the native library's whole-subsystem teardown. Flush calls
	// it once instead of freeing still-live handles one by one. Batch array
	// buffers are not the native library's and are always freed individually.
	// When nil, Flush runs each remaining cleanup individually.
	Teardown func()

	// Allocator backs batch arrays. Defaults to offheap.Default().
	Allocator offheap.Allocator

	// QueueCapacity is the initial capacity of the pending-notification queue.
	QueueCapacity int
}

// Stats reports reclaimer counters.
type Stats struct {
	Tracked           int64 // owned handles ever registered
	Live              int64 // owned handles not yet released
	ManualReleases    int64 // released by Release
	AutomaticReleases int64 // released after becoming unreachable
	Transferred       int64 // consumed by FromOwned
	TornDown          int64 // still live at Flush
}

// Reclaimer frees owned handles that become unreachable without being
// released, and tears down whatever is left at shutdown.
//
// The garbage collector's notification only enqueues the handle's state; a
// dedicated goroutine started by Start drains the queue and releases each
// entry through the same guard Release uses, so a handle is freed once no
// matter which path gets there first.
//
// Reclaimers are independent: each tracks only the handles created through it.
type Reclaimer struct {
	log      *zap.Logger
	alloc    offheap.Allocator
	teardown func()

	live *handles.Table[*handleState]

	// closeMu orders handle registration against Flush.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	pending []*handleState
	started bool
	flushed atomic.Bool

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}

	tracked     atomic.Int64
	manual      atomic.Int64
	automatic   atomic.Int64
	transferred atomic.Int64
	tornDown    atomic.Int64
}

// NewReclaimer creates a reclaimer. Call Start to begin processing
// unreachable handles and Flush at shutdown.
func NewReclaimer(cfg Config) *Reclaimer {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = offheap.Default()
	}
	return &Reclaimer{
		log:      log,
		alloc:    alloc,
		teardown: cfg.Teardown,
		live:     handles.New[*handleState](),
		pending:  make([]*handleState, 0, cfg.QueueCapacity),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background goroutine. It is safe to call more than once.
// Notifications that arrive before Start are queued and handled once it runs.
func (r *Reclaimer) Start() error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return newError("Reclaimer.Start", ErrClosed, "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	go r.run()

	r.log.Debug("reclaimer started", zap.String("allocator", r.alloc.Name()))
	// Process anything queued before Start.
	r.signal()
	return nil
}

// Own creates an owned handle. cleanup runs exactly once.
func (r *Reclaimer) Own(addr Address, cleanup CleanupFunc) (*Handle, error) {
	return r.NewHandle(addr, Owned, cleanup)
}

// Borrow wraps an address owned elsewhere. It is the same as the package
// level Borrow and is never tracked.
func (r *Reclaimer) Borrow(addr Address) *Handle {
	return Borrow(addr)
}

// NewHandle wraps addr. Owned handles require a non-zero address and a
// cleanup, and are tracked for automatic reclamation. Borrowed handles ignore
// cleanup and are not tracked.
func (r *Reclaimer) NewHandle(addr Address, ownership Ownership, cleanup CleanupFunc) (*Handle, error) {
	switch ownership {
	case Borrowed:
		return Borrow(addr), nil
	case Owned:
	default:
		return nil, newError("NewHandle", ErrInvalidOwnership, ownership.String())
	}
	return r.track("NewHandle", addr, cleanup, false)
}

// track registers an owned handle. allocated is set for buffers from r's
// allocator, which Flush frees itself even when a Teardown is configured.
func (r *Reclaimer) track(op string, addr Address, cleanup CleanupFunc, allocated bool) (*Handle, error) {
	if addr == 0 {
		return nil, newError(op, ErrInvalidAddress, "owned handle with zero address")
	}
	if cleanup == nil {
		return nil, newError(op, ErrNilCleanup, "")
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return nil, newError(op, ErrClosed, "")
	}

	st := &handleState{addr: addr, cleanup: cleanup, owner: r, allocated: allocated}
	st.id = r.live.Register(st)

	h := &Handle{st: st, ownership: Owned, tracked: true}
	h.stop = runtime.AddCleanup(h, r.enqueue, st)
	r.tracked.Add(1)
	return h, nil
}

// enqueue is the runtime cleanup callback. It runs on the runtime's cleanup
// goroutine and must not block.
func (r *Reclaimer) enqueue(st *handleState) {
	if r.flushed.Load() {
		// Everything still live was claimed by Flush.
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, st)
	r.mu.Unlock()
	r.signal()
}

func (r *Reclaimer) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reclaimer) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.wake:
			r.drainPending()
		}
	}
}

func (r *Reclaimer) drainPending() {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	n := 0
	for _, st := range batch {
		if r.reclaim(st) {
			n++
		}
	}
	if n > 0 {
		r.log.Debug("reclaimed unreachable handles", zap.Int("count", n))
	}
}

// reclaim releases one state on the automatic path. A panicking cleanup is
// logged and does not stop the worker; the handle stays released.
func (r *Reclaimer) reclaim(st *handleState) (released bool) {
	defer func() {
		if rec := recover(); rec != nil {
			released = true
			r.log.Error("panic in cleanup action",
				zap.Uint64("address", uint64(st.addr)),
				zap.String("recover", fmt.Sprint(rec)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	return st.release(releaseAutomatic)
}

// forget is called by the path that won a handle's guard.
func (r *Reclaimer) forget(st *handleState, kind releaseKind) {
	r.live.Unregister(st.id)
	switch kind {
	case releaseManual:
		r.manual.Add(1)
	case releaseAutomatic:
		r.automatic.Add(1)
	case releaseTransfer:
		r.transferred.Add(1)
	case releaseTeardown:
		r.tornDown.Add(1)
	}
}

// Flush shuts the reclaimer down. It stops the background goroutine and
// discards notifications it had not processed yet; those handles are still
// live and are picked up below. It then claims every owned handle that is
// still live and calls Config.Teardown once so the native library frees them
// all together. Without a Teardown each remaining cleanup runs individually.
// Batch array buffers come from the reclaimer's allocator, not the native
// library, so their cleanups always run individually.
//
// ctx bounds the wait for the background goroutine. If it expires, Flush
// still tears down and returns ctx.Err(). Calls after the first return nil.
func (r *Reclaimer) Flush(ctx context.Context) error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	r.closeMu.Unlock()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	var waitErr error
	if started {
		close(r.stopCh)
		select {
		case <-r.done:
		case <-ctx.Done():
			waitErr = ctx.Err()
		}
	}

	r.flushed.Store(true)
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	remaining := r.live.Drain()
	var claimed []*handleState
	for _, st := range remaining {
		if st.guard.claim(stateReleased) {
			claimed = append(claimed, st)
			r.tornDown.Add(1)
		}
	}

	if len(claimed) > 0 {
		r.log.Warn("handles still live at flush", zap.Int("count", len(claimed)),
			zap.Bool("bulk_teardown", r.teardown != nil))
	}

	if r.teardown != nil {
		r.teardown()
	}
	// Allocator buffers are freed here whether or not the engine tears down.
	for _, st := range claimed {
		if r.teardown == nil || st.allocated {
			r.runTeardownCleanup(st)
		}
	}

	r.log.Debug("reclaimer flushed",
		zap.Int64("manual", r.manual.Load()),
		zap.Int64("automatic", r.automatic.Load()),
		zap.Int64("torn_down", r.tornDown.Load()))

	if waitErr != nil {
		return fmt.Errorf("nativeref: flush: %w", waitErr)
	}
	return nil
}

func (r *Reclaimer) runTeardownCleanup(st *handleState) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in cleanup action during flush",
				zap.Uint64("address", uint64(st.addr)),
				zap.String("recover", fmt.Sprint(rec)))
		}
	}()
	st.cleanup(st.addr)
}

// Stats returns a snapshot of the reclaimer's counters.
func (r *Reclaimer) Stats() Stats {
	return Stats{
		Tracked:           r.tracked.Load(),
		Live:              int64(r.live.Count()),
		ManualReleases:    r.manual.Load(),
		AutomaticReleases: r.automatic.Load(),
		Transferred:       r.transferred.Load(),
		TornDown:          r.tornDown.Load(),
	}
}

// Allocator returns the allocator used for batch arrays.
func (r *Reclaimer) Allocator() offheap.Allocator {
	return r.alloc
}

// Pending returns the number of notifications waiting for the background goroutine.
func (r *Reclaimer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reclaimer) isClosed() bool {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	return r.closed
}
