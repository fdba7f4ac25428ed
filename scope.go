package nativeref

import "sync"

// Releaser is anything that frees a native resource on Release.
// Handle, SharedRef and BatchArray implement it.
type Releaser interface {
	Release()
}

// Scope releases everything added to it when closed, in reverse order of
// addition, like a stack of defers.
//
// Example:
//
//	scope := nativeref.NewScope()
//	defer scope.Close()
//
//	body, err := scope.Own(r, world.CreateBody(pos), world.FreeBody)
//	if err != nil {
//	    return err
//	}
type Scope struct {
	mu     sync.Mutex
	items  []Releaser
	closed bool
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add registers x for release when the scope closes. If the scope is already
// closed, x is released immediately.
func (s *Scope) Add(x Releaser) {
	if !s.add(x) {
		x.Release()
	}
}

// add registers x and reports whether the scope was still open.
func (s *Scope) add(x Releaser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.items = append(s.items, x)
	return true
}

// Own creates an owned handle through r and adds it to the scope. If the
// scope is closed the handle is released at once and Own fails with ErrClosed.
func (s *Scope) Own(r *Reclaimer, addr Address, cleanup CleanupFunc) (*Handle, error) {
	h, err := r.Own(addr, cleanup)
	if err != nil {
		return nil, err
	}
	if !s.add(h) {
		h.Release()
		return nil, newError("Scope.Own", ErrClosed, "scope is closed")
	}
	return h, nil
}

// Close releases everything in the scope, newest first. It is safe to call
// more than once and always returns nil.
func (s *Scope) Close() error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Release()
	}
	return nil
}

// With runs fn with x and releases x afterwards on every exit path,
// including a panic in fn.
func With[R Releaser](x R, fn func(R) error) error {
	defer x.Release()
	return fn(x)
}
