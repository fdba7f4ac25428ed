package nativeref

import "sync/atomic"

// handleState values. A handle leaves stateLive exactly once.
const (
	stateLive uint32 = iota
	stateReleased
	stateTransferred
)

// releaseGuard is the per-handle claim. Whichever caller moves it out of
// stateLive owns the side effect of that transition; everyone else sees the
// final state and does nothing.
type releaseGuard struct {
	v atomic.Uint32
}

// claim moves the guard from live to the given state. It reports whether
// this caller won.
func (g *releaseGuard) claim(to uint32) bool {
	return g.v.CompareAndSwap(stateLive, to)
}

func (g *releaseGuard) load() uint32 {
	return g.v.Load()
}

func stateString(s uint32) string {
	switch s {
	case stateLive:
		return "live"
	case stateReleased:
		return "released"
	case stateTransferred:
		return "transferred"
	default:
		return "unknown"
	}
}
