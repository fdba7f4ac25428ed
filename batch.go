package nativeref

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
)

// BatchArray is a fixed-length array of fixed-width elements in one
// contiguous off-heap buffer. It is the transfer buffer for bulk operations:
// element i occupies bytes [i*Width, (i+1)*Width) and scalars are little-endian.
//
// The buffer is owned by a single Handle and freed exactly once, either by
// Release or automatically when the array becomes unreachable. Writes to
// distinct indices from different goroutines are safe; anything else needs
// external synchronization.
type BatchArray struct {
	h      *Handle
	data   []byte
	length int
	width  int

	// checkedOut is the pool the array was taken from with Get, guarded by
	// that pool's mutex.
	checkedOut *BatchPool
}

// NewBatchArray allocates a zeroed array of length elements of width bytes
// from r's allocator. It fails with ErrInvalidLength if length < 0 or
// width <= 0.
func NewBatchArray(r *Reclaimer, length, width int) (*BatchArray, error) {
	const op = "NewBatchArray"
	if length < 0 {
		return nil, newError(op, ErrInvalidLength, fmt.Sprintf("length %d", length))
	}
	if width <= 0 {
		return nil, newError(op, ErrInvalidLength, fmt.Sprintf("element width %d", width))
	}
	if length > math.MaxInt/width {
		return nil, newError(op, ErrInvalidLength, fmt.Sprintf("%d elements of %d bytes overflows", length, width))
	}

	if length == 0 {
		return &BatchArray{h: Borrow(0), width: width}, nil
	}

	alloc := r.Allocator()
	region, err := alloc.Alloc(length * width)
	if err != nil {
		return nil, newError(op, ErrOutOfMemory, err.Error())
	}
	h, err := r.track(op, Address(region.Addr), func(Address) { alloc.Free(region) }, true)
	if err != nil {
		alloc.Free(region)
		return nil, err
	}
	return &BatchArray{h: h, data: region.Data, length: length, width: width}, nil
}

// Len returns the element count.
func (a *BatchArray) Len() int {
	return a.length
}

// Width returns the byte width of one element.
func (a *BatchArray) Width() int {
	return a.width
}

// IsLive reports whether the array has not been released.
func (a *BatchArray) IsLive() bool {
	return a.h.IsLive()
}

// Address returns the address of the backing buffer. Empty arrays have no
// buffer and report 0.
func (a *BatchArray) Address() (Address, error) {
	return a.h.liveAddress("BatchArray.Address")
}

// Release frees the backing buffer. Calls after the first are no-ops.
func (a *BatchArray) Release() {
	a.h.Release()
}

// Close calls Release. It implements io.Closer and always returns nil.
func (a *BatchArray) Close() error {
	a.Release()
	return nil
}

// slot returns element i's bytes after checking liveness and bounds.
// Callers must keep a reachable until they are done with the slice.
func (a *BatchArray) slot(op string, i int) ([]byte, error) {
	if !a.h.IsLive() {
		return nil, newError(op, ErrUseAfterRelease, "")
	}
	if i < 0 || i >= a.length {
		return nil, newError(op, ErrIndexOutOfRange, fmt.Sprintf("index %d, length %d", i, a.length))
	}
	off := i * a.width
	return a.data[off : off+a.width : off+a.width], nil
}

// bytes returns the whole buffer after checking liveness.
func (a *BatchArray) bytes(op string) ([]byte, error) {
	if !a.h.IsLive() {
		return nil, newError(op, ErrUseAfterRelease, "")
	}
	return a.data, nil
}

// Get returns a copy of element i.
func (a *BatchArray) Get(i int) ([]byte, error) {
	b, err := a.slot("BatchArray.Get", i)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	runtime.KeepAlive(a)
	return out, nil
}

// Set overwrites element i. v must be exactly Width bytes.
func (a *BatchArray) Set(i int, v []byte) error {
	const op = "BatchArray.Set"
	b, err := a.slot(op, i)
	if err != nil {
		return err
	}
	if len(v) != a.width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("value is %d bytes, element width %d", len(v), a.width))
	}
	copy(b, v)
	runtime.KeepAlive(a)
	return nil
}

// scalar returns the first n bytes of element i.
func (a *BatchArray) scalar(op string, i, n int) ([]byte, error) {
	b, err := a.slot(op, i)
	if err != nil {
		return nil, err
	}
	if a.width < n {
		return nil, newError(op, ErrLengthMismatch, fmt.Sprintf("element width %d smaller than %d", a.width, n))
	}
	return b[:n], nil
}

// Uint32 reads the first four bytes of element i.
func (a *BatchArray) Uint32(i int) (uint32, error) {
	b, err := a.scalar("BatchArray.Uint32", i, 4)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b)
	runtime.KeepAlive(a)
	return v, nil
}

// SetUint32 writes the first four bytes of element i.
func (a *BatchArray) SetUint32(i int, v uint32) error {
	b, err := a.scalar("BatchArray.SetUint32", i, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	runtime.KeepAlive(a)
	return nil
}

// Uint64 reads the first eight bytes of element i.
func (a *BatchArray) Uint64(i int) (uint64, error) {
	b, err := a.scalar("BatchArray.Uint64", i, 8)
	if err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b)
	runtime.KeepAlive(a)
	return v, nil
}

// SetUint64 writes the first eight bytes of element i.
func (a *BatchArray) SetUint64(i int, v uint64) error {
	b, err := a.scalar("BatchArray.SetUint64", i, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	runtime.KeepAlive(a)
	return nil
}

// Float32s decodes element i as Width/4 float32 components into dst.
// len(dst) must equal Width/4.
func (a *BatchArray) Float32s(i int, dst []float32) error {
	const op = "BatchArray.Float32s"
	b, err := a.slot(op, i)
	if err != nil {
		return err
	}
	if len(dst)*4 != a.width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("%d float32s for element width %d", len(dst), a.width))
	}
	for k := range dst {
		dst[k] = math.Float32frombits(binary.LittleEndian.Uint32(b[k*4:]))
	}
	runtime.KeepAlive(a)
	return nil
}

// SetFloat32s encodes src into element i. len(src) must equal Width/4.
func (a *BatchArray) SetFloat32s(i int, src []float32) error {
	const op = "BatchArray.SetFloat32s"
	b, err := a.slot(op, i)
	if err != nil {
		return err
	}
	if len(src)*4 != a.width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("%d float32s for element width %d", len(src), a.width))
	}
	for k, v := range src {
		binary.LittleEndian.PutUint32(b[k*4:], math.Float32bits(v))
	}
	runtime.KeepAlive(a)
	return nil
}

// Float64s decodes element i as Width/8 float64 components into dst.
// len(dst) must equal Width/8.
func (a *BatchArray) Float64s(i int, dst []float64) error {
	const op = "BatchArray.Float64s"
	b, err := a.slot(op, i)
	if err != nil {
		return err
	}
	if len(dst)*8 != a.width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("%d float64s for element width %d", len(dst), a.width))
	}
	for k := range dst {
		dst[k] = math.Float64frombits(binary.LittleEndian.Uint64(b[k*8:]))
	}
	runtime.KeepAlive(a)
	return nil
}

// SetFloat64s encodes src into element i. len(src) must equal Width/8.
func (a *BatchArray) SetFloat64s(i int, src []float64) error {
	const op = "BatchArray.SetFloat64s"
	b, err := a.slot(op, i)
	if err != nil {
		return err
	}
	if len(src)*8 != a.width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("%d float64s for element width %d", len(src), a.width))
	}
	for k, v := range src {
		binary.LittleEndian.PutUint64(b[k*8:], math.Float64bits(v))
	}
	runtime.KeepAlive(a)
	return nil
}
