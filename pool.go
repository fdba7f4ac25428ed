package nativeref

import (
	"errors"
	"sync"
)

// Pool errors.
var (
	// ErrPoolExhausted is returned by BatchPool.Get when the in-use limit is reached.
	ErrPoolExhausted = errors.New("nativeref: batch pool exhausted")

	// ErrNotCheckedOut is returned by BatchPool.Put for an array that is not
	// currently checked out of that pool, including one already put back.
	ErrNotCheckedOut = errors.New("nativeref: array not checked out of this pool")
)

// BatchPool reuses batch arrays of one shape to avoid an allocation per bulk
// transfer.
//
// Arrays returned from Get are owned by the caller and must come back through
// Put exactly once. Arrays dropped without Put are still freed by the
// reclaimer, but the pool keeps counting them as in use.
type BatchPool struct {
	r      *Reclaimer
	length int
	width  int

	mu       sync.Mutex
	idle     []*BatchArray
	closed   bool
	inUse    int
	maxInUse int
}

// NewBatchPool creates a pool of arrays of length elements of width bytes.
// If maxInUse <= 0, the pool is unbounded.
func NewBatchPool(r *Reclaimer, length, width, maxInUse int) (*BatchPool, error) {
	if length <= 0 || width <= 0 {
		return nil, newError("NewBatchPool", ErrInvalidLength, "pooled arrays need a positive shape")
	}
	return &BatchPool{
		r:        r,
		length:   length,
		width:    width,
		maxInUse: maxInUse,
	}, nil
}

// Get returns a zeroed array from the pool, allocating one if none is idle.
func (p *BatchPool) Get() (*BatchArray, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, newError("BatchPool.Get", ErrClosed, "pool is closed")
	}
	if p.maxInUse > 0 && p.inUse >= p.maxInUse {
		return nil, newError("BatchPool.Get", ErrPoolExhausted, "")
	}

	var a *BatchArray
	if n := len(p.idle); n > 0 {
		a = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		clear(a.data)
	} else {
		var err error
		a, err = NewBatchArray(p.r, p.length, p.width)
		if err != nil {
			return nil, err
		}
	}
	a.checkedOut = p
	p.inUse++
	return a, nil
}

// Put returns an array to the pool. Only arrays checked out with Get are
// accepted, and each only once per Get. An array the caller released is
// dropped from the pool's books and reported with ErrUseAfterRelease. After
// Close, Put releases the array instead.
func (p *BatchPool) Put(a *BatchArray) error {
	if p == nil || a == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if a.checkedOut != p {
		return newError("BatchPool.Put", ErrNotCheckedOut, "")
	}
	a.checkedOut = nil
	p.inUse--
	if !a.IsLive() {
		return newError("BatchPool.Put", ErrUseAfterRelease, "")
	}
	if p.closed {
		a.Release()
		return nil
	}
	p.idle = append(p.idle, a)
	return nil
}

// Idle returns the number of arrays waiting in the pool.
func (p *BatchPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close releases all idle arrays. Arrays still in use are not affected.
func (p *BatchPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, a := range p.idle {
		a.Release()
	}
	p.idle = nil
	return nil
}
