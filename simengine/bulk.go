package simengine

import (
	"encoding/binary"
	"math"

	"github.com/obinnaokechukwu/nativeref"
)

// Element widths of the bulk layouts, in bytes.
const (
	IDWidth        = 4
	PositionWidth  = 3 * 4
	TransformWidth = 16 * 4
)

// ReadIDs writes the id of addrs[i] into dst[i*IDWidth:]. It takes the engine
// lock once for all addresses.
func (w *World) ReadIDs(addrs []nativeref.Address, dst []byte) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, addr := range addrs {
		binary.LittleEndian.PutUint32(dst[i*IDWidth:], w.bodyIDLocked("ReadIDs", addr))
	}
}

// ReadPositions writes the position of addrs[i] into dst[i*PositionWidth:].
func (w *World) ReadPositions(addrs []nativeref.Address, dst []byte) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, addr := range addrs {
		p := w.positionLocked("ReadPositions", addr)
		putFloat32s(dst[i*PositionWidth:], p[:])
	}
}

// WritePositions sets the position of addrs[i] from src[i*PositionWidth:].
func (w *World) WritePositions(addrs []nativeref.Address, src []byte) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, addr := range addrs {
		var p [3]float32
		float32s(p[:], src[i*PositionWidth:])
		w.setPositionLocked("WritePositions", addr, p)
	}
}

// ReadTransforms writes the transform of addrs[i] into dst[i*TransformWidth:].
func (w *World) ReadTransforms(addrs []nativeref.Address, dst []byte) {
	w.cross()
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, addr := range addrs {
		m := w.transformLocked("ReadTransforms", addr)
		putFloat32s(dst[i*TransformWidth:], m[:])
	}
}

// IDs is the read-only body id accessor.
func (w *World) IDs() nativeref.Accessor {
	return nativeref.Accessor{
		Name:  "id",
		Width: IDWidth,
		Read: func(addr nativeref.Address, dst []byte) {
			binary.LittleEndian.PutUint32(dst, w.BodyID(addr))
		},
		ReadBatch: w.ReadIDs,
	}
}

// Positions is the body position accessor.
func (w *World) Positions() nativeref.Accessor {
	return nativeref.Accessor{
		Name:  "position",
		Width: PositionWidth,
		Read: func(addr nativeref.Address, dst []byte) {
			p := w.Position(addr)
			putFloat32s(dst, p[:])
		},
		ReadBatch: w.ReadPositions,
		Write: func(addr nativeref.Address, src []byte) {
			var p [3]float32
			float32s(p[:], src)
			w.SetPosition(addr, p)
		},
		WriteBatch: w.WritePositions,
	}
}

// Transforms is the read-only body transform accessor.
func (w *World) Transforms() nativeref.Accessor {
	return nativeref.Accessor{
		Name:  "transform",
		Width: TransformWidth,
		Read: func(addr nativeref.Address, dst []byte) {
			m := w.Transform(addr)
			putFloat32s(dst, m[:])
		},
		ReadBatch: w.ReadTransforms,
	}
}

// Shapes returns the shape reference counting entry points for nativeref.FromOwned.
func (w *World) Shapes() nativeref.RefCounter {
	return shapeCounter{w}
}

type shapeCounter struct {
	w *World
}

func (c shapeCounter) Retain(addr nativeref.Address)  { c.w.RetainShape(addr) }
func (c shapeCounter) Release(addr nativeref.Address) { c.w.ReleaseShape(addr) }

func putFloat32s(dst []byte, v []float32) {
	for k, f := range v {
		binary.LittleEndian.PutUint32(dst[k*4:], math.Float32bits(f))
	}
}

func float32s(dst []float32, src []byte) {
	for k := range dst {
		dst[k] = math.Float32frombits(binary.LittleEndian.Uint32(src[k*4:]))
	}
}
