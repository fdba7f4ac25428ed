//go:build linux || darwin || freebsd || netbsd || openbsd

package offheap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type mmapAllocator struct {
	accounting
}

// Mmap returns an allocator that gives every region its own anonymous
// private mapping. Regions are page-granular, so it suits few large buffers
// better than many small ones.
func Mmap() Allocator {
	return &mmapAllocator{}
}

func (a *mmapAllocator) Alloc(n int) (Region, error) {
	if n <= 0 {
		return Region{}, ErrInvalidSize
	}
	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return Region{}, fmt.Errorf("%w: mmap %d bytes: %w", ErrOutOfMemory, n, err)
	}
	a.track(n)
	return Region{Addr: addrOf(data), Data: data}, nil
}

func (a *mmapAllocator) Free(r Region) {
	if r.Data == nil {
		return
	}
	n := len(r.Data)
	if err := unix.Munmap(r.Data); err != nil {
		// The mapping is unknown to us; nothing was released.
		return
	}
	a.untrack(n)
}

func (a *mmapAllocator) Name() string { return "mmap" }

// Default returns the mmap allocator.
func Default() Allocator {
	return Mmap()
}
