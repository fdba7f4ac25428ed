package offheap

import (
	"unsafe"

	"github.com/obinnaokechukwu/nativeref/internal/bindings"
)

type libcAllocator struct {
	accounting
}

// Libc returns an allocator backed by the C library's calloc and free,
// loaded at runtime through purego. It fails if the C library cannot be
// loaded on this platform.
func Libc() (Allocator, error) {
	if err := bindings.Load(); err != nil {
		return nil, err
	}
	return &libcAllocator{}, nil
}

func (a *libcAllocator) Alloc(n int) (Region, error) {
	if n <= 0 {
		return Region{}, ErrInvalidSize
	}
	ptr := bindings.Calloc(uintptr(n), 1)
	if ptr == 0 {
		return Region{}, ErrOutOfMemory
	}
	a.track(n)
	data := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
	return Region{Addr: uint64(ptr), Data: data}, nil
}

func (a *libcAllocator) Free(r Region) {
	if r.Addr == 0 {
		return
	}
	bindings.Free(uintptr(r.Addr))
	a.untrack(len(r.Data))
}

func (a *libcAllocator) Name() string { return "libc" }
