// Package platform provides platform detection for nativeref's native loaders.
// It determines shared library naming and the C library to bind against based
// on the operating system.
package platform

import (
	"fmt"
	"runtime"
)

// LibraryExtension is the file extension for shared libraries on this platform.
var LibraryExtension string

// LibraryPrefix is the prefix for shared library names on this platform.
var LibraryPrefix string

func init() {
	switch runtime.GOOS {
	case "darwin":
		LibraryExtension = ".dylib"
		LibraryPrefix = "lib"
	default: // linux, freebsd, etc.
		LibraryExtension = ".so"
		LibraryPrefix = "lib"
	}
}

// FormatLibraryName returns the platform-specific library filename.
// If version is 0, returns the unversioned library name.
//
// Examples:
//   - Linux:   FormatLibraryName("c", 6) -> "libc.so.6"
//   - macOS:   FormatLibraryName("System.B", 0) -> "libSystem.B.dylib"
func FormatLibraryName(name string, version int) string {
	switch runtime.GOOS {
	case "darwin":
		if version > 0 {
			return fmt.Sprintf("%s%s.%d%s", LibraryPrefix, name, version, LibraryExtension)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	default: // linux, freebsd
		if version > 0 {
			return fmt.Sprintf("%s%s%s.%d", LibraryPrefix, name, LibraryExtension, version)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	}
}

// CLibrary returns the base name and candidate versions of the C runtime
// library that provides malloc/calloc/free on this platform.
func CLibrary() (name string, versions []int) {
	switch runtime.GOOS {
	case "darwin":
		return "System.B", nil
	case "freebsd":
		return "c", []int{7}
	default:
		return "c", []int{6}
	}
}
