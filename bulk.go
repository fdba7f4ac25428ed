package nativeref

import (
	"fmt"
	"runtime"
)

// Accessor describes one per-object property that can be transferred in
// bulk. Width is the fixed byte size of one element in the transfer buffer.
//
// The batch functions cross into the native library once for all addresses;
// element i of buf corresponds to addrs[i]. The single-element functions are
// used by ReadOne/WriteOne and as a fallback when no batch function is set.
// A batch function must have the same effect as calling its single-element
// counterpart once per address, in index order.
type Accessor struct {
	Name  string
	Width int

	Read       func(addr Address, dst []byte)
	ReadBatch  func(addrs []Address, dst []byte)
	Write      func(addr Address, src []byte)
	WriteBatch func(addrs []Address, src []byte)
}

func (acc Accessor) canRead() bool  { return acc.Read != nil || acc.ReadBatch != nil }
func (acc Accessor) canWrite() bool { return acc.Write != nil || acc.WriteBatch != nil }

// addresses collects the live, assigned addresses of handles in order.
func addresses(op string, hs []*Handle) ([]Address, error) {
	addrs := make([]Address, len(hs))
	for i, h := range hs {
		addr, err := h.assignedAddress(op)
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.Detail = fmt.Sprintf("handle %d", i)
			}
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// ReadOne reads acc from a single handle.
func ReadOne(acc Accessor, h *Handle) ([]byte, error) {
	const op = "ReadOne"
	if acc.Width <= 0 {
		return nil, newError(op, ErrInvalidLength, fmt.Sprintf("accessor %q width %d", acc.Name, acc.Width))
	}
	if !acc.canRead() {
		return nil, newError(op, ErrUnsupported, fmt.Sprintf("accessor %q is not readable", acc.Name))
	}
	addr, err := h.assignedAddress(op)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, acc.Width)
	if acc.Read != nil {
		acc.Read(addr, dst)
	} else {
		acc.ReadBatch([]Address{addr}, dst)
	}
	runtime.KeepAlive(h)
	return dst, nil
}

// WriteOne writes src to acc on a single handle. src must be Width bytes.
func WriteOne(acc Accessor, h *Handle, src []byte) error {
	const op = "WriteOne"
	if !acc.canWrite() {
		return newError(op, ErrUnsupported, fmt.Sprintf("accessor %q is not writable", acc.Name))
	}
	if len(src) != acc.Width {
		return newError(op, ErrLengthMismatch, fmt.Sprintf("value is %d bytes, accessor %q width %d", len(src), acc.Name, acc.Width))
	}
	addr, err := h.assignedAddress(op)
	if err != nil {
		return err
	}
	if acc.Write != nil {
		acc.Write(addr, src)
	} else {
		acc.WriteBatch([]Address{addr}, src)
	}
	runtime.KeepAlive(h)
	return nil
}

// BulkRead reads acc from every handle into a new BatchArray of
// len(handles) elements, crossing into the native library once. Element i
// equals ReadOne(acc, handles[i]).
//
// Every handle must be live and assigned. The caller owns the returned array.
func BulkRead(r *Reclaimer, acc Accessor, handles []*Handle) (*BatchArray, error) {
	const op = "BulkRead"
	if acc.Width <= 0 {
		return nil, newError(op, ErrInvalidLength, fmt.Sprintf("accessor %q width %d", acc.Name, acc.Width))
	}
	if !acc.canRead() {
		return nil, newError(op, ErrUnsupported, fmt.Sprintf("accessor %q is not readable", acc.Name))
	}
	if _, err := addresses(op, handles); err != nil {
		return nil, err
	}

	arr, err := NewBatchArray(r, len(handles), acc.Width)
	if err != nil {
		return nil, err
	}
	if err := BulkReadInto(acc, arr, handles); err != nil {
		arr.Release()
		return nil, err
	}
	return arr, nil
}

// BulkReadInto is BulkRead into an existing array, such as one from a
// BatchPool. arr must have len(handles) elements of acc.Width bytes.
func BulkReadInto(acc Accessor, arr *BatchArray, handles []*Handle) error {
	const op = "BulkReadInto"
	if !acc.canRead() {
		return newError(op, ErrUnsupported, fmt.Sprintf("accessor %q is not readable", acc.Name))
	}
	buf, addrs, err := prepare(op, acc, arr, handles)
	if err != nil || len(addrs) == 0 {
		return err
	}

	if acc.ReadBatch != nil {
		acc.ReadBatch(addrs, buf)
	} else {
		for i, addr := range addrs {
			acc.Read(addr, buf[i*acc.Width:(i+1)*acc.Width])
		}
	}
	runtime.KeepAlive(handles)
	runtime.KeepAlive(arr)
	return nil
}

// prepare checks arr against acc and handles and returns the transfer buffer
// and the handle addresses.
func prepare(op string, acc Accessor, arr *BatchArray, handles []*Handle) ([]byte, []Address, error) {
	if arr.Width() != acc.Width {
		return nil, nil, newError(op, ErrLengthMismatch, fmt.Sprintf("array width %d, accessor %q width %d", arr.Width(), acc.Name, acc.Width))
	}
	if arr.Len() != len(handles) {
		return nil, nil, newError(op, ErrLengthMismatch, fmt.Sprintf("array length %d, %d handles", arr.Len(), len(handles)))
	}
	buf, err := arr.bytes(op)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := addresses(op, handles)
	if err != nil {
		return nil, nil, err
	}
	return buf, addrs, nil
}

// BulkWrite writes element i of arr to handles[i] for every i, crossing into
// the native library once. It fails with ErrLengthMismatch if arr.Len()
// differs from len(handles) or arr.Width() from acc.Width.
func BulkWrite(acc Accessor, arr *BatchArray, handles []*Handle) error {
	const op = "BulkWrite"
	if !acc.canWrite() {
		return newError(op, ErrUnsupported, fmt.Sprintf("accessor %q is not writable", acc.Name))
	}
	buf, addrs, err := prepare(op, acc, arr, handles)
	if err != nil || len(addrs) == 0 {
		return err
	}

	if acc.WriteBatch != nil {
		acc.WriteBatch(addrs, buf)
	} else {
		for i, addr := range addrs {
			acc.Write(addr, buf[i*acc.Width:(i+1)*acc.Width])
		}
	}
	runtime.KeepAlive(handles)
	runtime.KeepAlive(arr)
	return nil
}
