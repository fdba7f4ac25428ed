//go:build !((linux || darwin || freebsd) && !ios && !android && (amd64 || arm64))

package bindings

import "errors"

// ErrUnsupported is returned by Load on platforms purego cannot dlopen on.
var ErrUnsupported = errors.New("nativeref: dynamic loading not supported on this platform")

// Load always fails on this platform.
func Load() error { return ErrUnsupported }

// Calloc always returns 0 on this platform.
func Calloc(uintptr, uintptr) uintptr { return 0 }

// Free is a no-op on this platform.
func Free(uintptr) {}
