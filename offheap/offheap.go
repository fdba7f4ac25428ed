// Package offheap allocates memory outside the Go heap for buffers whose
// lifetime is managed explicitly rather than by the garbage collector.
//
// Three allocators are provided:
//
//	offheap.Mmap()  // anonymous private mappings (unix)
//	offheap.Libc()  // malloc/calloc/free from the C library via purego
//	offheap.Heap()  // ordinary Go memory, for platforms with neither
//
// Default returns the best allocator available on the current platform.
// Memory returned by every allocator is zeroed.
package offheap

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrInvalidSize is returned when an allocation of zero or negative bytes is requested.
var ErrInvalidSize = errors.New("offheap: allocation size must be positive")

// ErrOutOfMemory is returned when the underlying allocator fails.
var ErrOutOfMemory = errors.New("offheap: out of memory")

// Region is one contiguous allocation. Addr is the address of Data[0].
type Region struct {
	Addr uint64
	Data []byte
}

// Len returns the size of the region in bytes.
func (r Region) Len() int {
	return len(r.Data)
}

// Allocator hands out zeroed regions and takes them back.
//
// Free must be called exactly once per region returned by Alloc, with the
// region unchanged.
type Allocator interface {
	Alloc(n int) (Region, error)
	Free(r Region)
	Name() string
	Usage() Usage
}

// Usage reports memory currently held by an allocator.
type Usage struct {
	Regions int64
	Bytes   int64
}

// accounting tracks live regions; embedded by every allocator.
type accounting struct {
	regions atomic.Int64
	bytes   atomic.Int64
}

func (a *accounting) track(n int) {
	a.regions.Add(1)
	a.bytes.Add(int64(n))
}

func (a *accounting) untrack(n int) {
	a.regions.Add(-1)
	a.bytes.Add(-int64(n))
}

// Usage returns the live region count and byte total.
func (a *accounting) Usage() Usage {
	return Usage{Regions: a.regions.Load(), Bytes: a.bytes.Load()}
}

func addrOf(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

type heapAllocator struct {
	accounting
}

// Heap returns an allocator backed by ordinary Go slices. The Go collector
// never moves heap objects, so addresses stay stable while the region is held.
func Heap() Allocator {
	return &heapAllocator{}
}

func (a *heapAllocator) Alloc(n int) (Region, error) {
	if n <= 0 {
		return Region{}, ErrInvalidSize
	}
	data := make([]byte, n)
	a.track(n)
	return Region{Addr: addrOf(data), Data: data}, nil
}

func (a *heapAllocator) Free(r Region) {
	if r.Data == nil {
		return
	}
	a.untrack(len(r.Data))
}

func (a *heapAllocator) Name() string { return "heap" }
