//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package offheap

// Default returns the Go heap allocator on platforms without anonymous mmap.
func Default() Allocator {
	return Heap()
}
