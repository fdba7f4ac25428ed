// Package simengine is an in-process stand-in for an opaque native physics
// engine. It hands out addresses for bodies and shapes, keeps per-object
// state behind a single engine lock, and counts every free so tests can
// check that each object was freed exactly once. It does no physics.
//
// Addresses are never reused, so a second free of the same address is always
// detected and counted by DoubleFrees instead of corrupting anything.
package simengine

import (
	"sync"
	"sync/atomic"

	"github.com/obinnaokechukwu/nativeref"
	"go.uber.org/zap"
)

const (
	addressBase   = 0x7f0000001000
	addressStride = 0x80
)

type body struct {
	id        uint32
	pos       [3]float32
	transform [16]float32
	shape     nativeref.Address
}

type shape struct {
	radius float32
	refs   int32
}

// World is one engine instance. All methods are safe for concurrent use.
type World struct {
	log *zap.Logger

	mu     sync.Mutex
	next   uint64
	nextID uint32
	bodies map[nativeref.Address]*body
	shapes map[nativeref.Address]*shape

	frees       atomic.Int64
	doubleFrees atomic.Int64
	tornDown    atomic.Int64
	crossings   atomic.Int64
	badAccesses atomic.Int64
}

// NewWorld creates an empty world that logs through nativeref.Logger().
func NewWorld() *World {
	return &World{
		log:    nativeref.Logger().Named("simengine"),
		next:   addressBase,
		bodies: make(map[nativeref.Address]*body),
		shapes: make(map[nativeref.Address]*shape),
	}
}

// allocLocked returns a fresh address. w.mu must be held.
func (w *World) allocLocked() nativeref.Address {
	addr := nativeref.Address(w.next)
	w.next += addressStride
	return addr
}

func (w *World) cross() {
	w.crossings.Add(1)
}

func (w *World) bad(op string, addr nativeref.Address) {
	w.badAccesses.Add(1)
	w.log.Warn("access to unknown object", zap.String("op", op), zap.Uint64("address", uint64(addr)))
}

// CreateBody creates a body at pos with an identity rotation and returns its address.
func (w *World) CreateBody(pos [3]float32) nativeref.Address {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++
	b := &body{id: w.nextID, pos: pos}
	b.transform = translation(pos)
	addr := w.allocLocked()
	w.bodies[addr] = b
	return addr
}

// FreeBody frees a body and drops its reference to an attached shape.
// Freeing an unknown address counts as a double free.
func (w *World) FreeBody(addr nativeref.Address) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.bodies[addr]
	if !ok {
		w.doubleFrees.Add(1)
		w.log.Error("double free of body", zap.Uint64("address", uint64(addr)))
		return
	}
	delete(w.bodies, addr)
	w.frees.Add(1)
	if b.shape != 0 {
		w.releaseShapeLocked(b.shape)
	}
}

// AttachShape makes the body hold a reference to shape, replacing any shape
// it held before. It reports false if either object is unknown.
func (w *World) AttachShape(bodyAddr, shapeAddr nativeref.Address) bool {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.bodies[bodyAddr]
	if !ok {
		w.bad("AttachShape", bodyAddr)
		return false
	}
	s, ok := w.shapes[shapeAddr]
	if !ok {
		w.bad("AttachShape", shapeAddr)
		return false
	}
	s.refs++
	if b.shape != 0 {
		w.releaseShapeLocked(b.shape)
	}
	b.shape = shapeAddr
	return true
}

// BodyShape returns the address of the shape attached to a body, or 0. The
// body owns that reference; callers should wrap it with nativeref.Borrow.
func (w *World) BodyShape(addr nativeref.Address) nativeref.Address {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.bodies[addr]
	if !ok {
		w.bad("BodyShape", addr)
		return 0
	}
	return b.shape
}

// BodyID returns the body's sequential id.
func (w *World) BodyID(addr nativeref.Address) uint32 {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bodyIDLocked("BodyID", addr)
}

func (w *World) bodyIDLocked(op string, addr nativeref.Address) uint32 {
	b, ok := w.bodies[addr]
	if !ok {
		w.bad(op, addr)
		return 0
	}
	return b.id
}

// Position returns the body's position.
func (w *World) Position(addr nativeref.Address) [3]float32 {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.positionLocked("Position", addr)
}

func (w *World) positionLocked(op string, addr nativeref.Address) [3]float32 {
	b, ok := w.bodies[addr]
	if !ok {
		w.bad(op, addr)
		return [3]float32{}
	}
	return b.pos
}

// SetPosition moves the body and updates its transform.
func (w *World) SetPosition(addr nativeref.Address, pos [3]float32) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setPositionLocked("SetPosition", addr, pos)
}

func (w *World) setPositionLocked(op string, addr nativeref.Address, pos [3]float32) {
	b, ok := w.bodies[addr]
	if !ok {
		w.bad(op, addr)
		return
	}
	b.pos = pos
	b.transform[12], b.transform[13], b.transform[14] = pos[0], pos[1], pos[2]
}

// Transform returns the body's column-major 4x4 transform.
func (w *World) Transform(addr nativeref.Address) [16]float32 {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transformLocked("Transform", addr)
}

func (w *World) transformLocked(op string, addr nativeref.Address) [16]float32 {
	b, ok := w.bodies[addr]
	if !ok {
		w.bad(op, addr)
		return [16]float32{}
	}
	return b.transform
}

// CreateShape creates a sphere shape. Its reference count starts at zero;
// the first owner takes a reference with RetainShape.
func (w *World) CreateShape(radius float32) nativeref.Address {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	addr := w.allocLocked()
	w.shapes[addr] = &shape{radius: radius}
	return addr
}

// RetainShape adds a reference to a shape.
func (w *World) RetainShape(addr nativeref.Address) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.shapes[addr]
	if !ok {
		w.bad("RetainShape", addr)
		return
	}
	s.refs++
}

// ReleaseShape drops a reference and frees the shape once none are left.
// Releasing an unknown shape counts as a double free.
func (w *World) ReleaseShape(addr nativeref.Address) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseShapeLocked(addr)
}

func (w *World) releaseShapeLocked(addr nativeref.Address) {
	s, ok := w.shapes[addr]
	if !ok {
		w.doubleFrees.Add(1)
		w.log.Error("double free of shape", zap.Uint64("address", uint64(addr)))
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(w.shapes, addr)
		w.frees.Add(1)
	}
}

// ShapeAlive reports whether the shape has not been freed.
func (w *World) ShapeAlive(addr nativeref.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.shapes[addr]
	return ok
}

// ShapeRefCount returns the shape's reference count, or -1 if it was freed.
func (w *World) ShapeRefCount(addr nativeref.Address) int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.shapes[addr]
	if !ok {
		return -1
	}
	return s.refs
}

// ShapeRadius returns the shape's radius.
func (w *World) ShapeRadius(addr nativeref.Address) float32 {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.shapes[addr]
	if !ok {
		w.bad("ShapeRadius", addr)
		return 0
	}
	return s.radius
}

// Teardown frees every remaining object at once and returns how many it freed.
// It is the bulk teardown to pass as nativeref.Config.Teardown.
func (w *World) Teardown() int {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.bodies) + len(w.shapes)
	clear(w.bodies)
	clear(w.shapes)
	w.tornDown.Add(int64(n))
	if n > 0 {
		w.log.Debug("world torn down", zap.Int("objects", n))
	}
	return n
}

// Frees returns the number of individual frees.
func (w *World) Frees() int64 { return w.frees.Load() }

// DoubleFrees returns the number of frees of unknown or already freed addresses.
func (w *World) DoubleFrees() int64 { return w.doubleFrees.Load() }

// TornDown returns the number of objects freed by Teardown.
func (w *World) TornDown() int64 { return w.tornDown.Load() }

// Crossings returns the number of calls made into the world.
func (w *World) Crossings() int64 { return w.crossings.Load() }

// BadAccesses returns the number of reads or writes of unknown objects.
func (w *World) BadAccesses() int64 { return w.badAccesses.Load() }

// LiveBodies returns the number of bodies not yet freed.
func (w *World) LiveBodies() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

// LiveShapes returns the number of shapes not yet freed.
func (w *World) LiveShapes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.shapes)
}

func translation(pos [3]float32) [16]float32 {
	var m [16]float32
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	m[12], m[13], m[14] = pos[0], pos[1], pos[2]
	return m
}
