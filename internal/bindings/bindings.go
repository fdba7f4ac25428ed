//go:build (linux || darwin || freebsd) && !ios && !android && (amd64 || arm64)

// Package bindings handles loading the C runtime library and registering the
// allocation entry points nativeref needs using purego.
package bindings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"github.com/obinnaokechukwu/nativeref/internal/platform"
)

// ErrLibraryNotFound is returned when a required library cannot be found.
var ErrLibraryNotFound = errors.New("nativeref: native library not found")

var (
	loaded   bool
	loadOnce sync.Once
	loadErr  error
)

// Function bindings
var (
	cCalloc func(count, size uintptr) uintptr
	cFree   func(ptr uintptr)
)

// Load loads the C library and registers calloc and free.
// It is safe to call multiple times; subsequent calls are no-ops.
func Load() error {
	loadOnce.Do(func() {
		loadErr = doLoad()
		if loadErr == nil {
			loaded = true
		}
	})
	return loadErr
}

func doLoad() error {
	name, versions := platform.CLibrary()

	libC, err := loadLibrary(name, versions)
	if err != nil {
		return fmt.Errorf("loading C library: %w", err)
	}

	purego.RegisterLibFunc(&cCalloc, libC, "calloc")
	purego.RegisterLibFunc(&cFree, libC, "free")

	return nil
}

// loadLibrary attempts to load a library by trying versioned names.
func loadLibrary(name string, versions []int) (uintptr, error) {
	for _, searchPath := range LibrarySearchPaths() {
		// Versioned names first (more specific)
		for _, ver := range versions {
			lib, err := tryOpen(filepath.Join(searchPath, platform.FormatLibraryName(name, ver)))
			if err == nil {
				return lib, nil
			}
		}

		lib, err := tryOpen(filepath.Join(searchPath, platform.FormatLibraryName(name, 0)))
		if err == nil {
			return lib, nil
		}
	}

	// Let the dynamic linker search
	for _, ver := range versions {
		lib, err := tryOpen(platform.FormatLibraryName(name, ver))
		if err == nil {
			return lib, nil
		}
	}

	lib, err := tryOpen(platform.FormatLibraryName(name, 0))
	if err == nil {
		return lib, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
}

// tryOpen attempts to open a library with RTLD_NOW | RTLD_GLOBAL.
func tryOpen(path string) (uintptr, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, err
	}
	return lib, nil
}

// LibrarySearchPaths returns platform-specific library search paths.
func LibrarySearchPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "linux":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths,
			"/lib/x86_64-linux-gnu",
			"/lib/aarch64-linux-gnu",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/local/lib",
			"/usr/lib",
			"/lib64",
			"/lib",
		)

	case "darwin":
		if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
			paths = append(paths, filepath.SplitList(dyldPath)...)
		}
		// libSystem lives in the dyld shared cache; dlopen resolves the path
		// even though the file is not on disk.
		paths = append(paths, "/usr/lib")

	case "freebsd":
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
		paths = append(paths,
			"/lib",
			"/usr/local/lib",
			"/usr/lib",
		)
	}

	return paths
}

// Calloc allocates zeroed C memory for count elements of size bytes.
// Returns 0 if the library is not loaded or allocation failed.
func Calloc(count, size uintptr) uintptr {
	if !loaded || cCalloc == nil {
		return 0
	}
	return cCalloc(count, size)
}

// Free releases memory obtained from Calloc. Safe to call with 0.
func Free(ptr uintptr) {
	if ptr == 0 || !loaded || cFree == nil {
		return
	}
	cFree(ptr)
}
