package structchunk

import (
	"fmt"
)

// DenseArray is a fully materialized chunk: one fixed-size element per
// coordinate of Extent, in row-major order.
type DenseArray struct {
	Extent   Extent
	ElemSize int
	Data     []byte
}

// NewDenseArray allocates an array of extent with every element set to
// fill. A nil fill means zero bytes.
func NewDenseArray(extent Extent, elemSize int, fill []byte) (*DenseArray, error) {
	if err := extent.Validate(); err != nil {
		return nil, err
	}
	if elemSize < 1 {
		return nil, fmt.Errorf("%w: element size %d", ErrLengthMismatch, elemSize)
	}
	if fill != nil && len(fill) != elemSize {
		return nil, fmt.Errorf("%w: fill value is %d bytes, element size is %d", ErrLengthMismatch, len(fill), elemSize)
	}
	a := &DenseArray{
		Extent:   append(Extent(nil), extent...),
		ElemSize: elemSize,
		Data:     make([]byte, extent.NumElements()*uint64(elemSize)),
	}
	if !isZero(fill) {
		for off := 0; off < len(a.Data); off += elemSize {
			copy(a.Data[off:], fill)
		}
	}
	return a, nil
}

// At returns the bytes of the element at c. The slice aliases Data.
func (a *DenseArray) At(c Coordinate) ([]byte, error) {
	if !a.Extent.Contains(c) {
		return nil, fmt.Errorf("%w: %v not in %s", ErrOutOfBounds, c, a.Extent)
	}
	off := a.Extent.Linear(c) * uint64(a.ElemSize)
	return a.Data[off : off+uint64(a.ElemSize)], nil
}

func (a *DenseArray) check() error {
	if want := a.Extent.NumElements() * uint64(a.ElemSize); uint64(len(a.Data)) != want {
		return fmt.Errorf("%w: dense array holds %d bytes, %s of %d byte elements needs %d",
			ErrLengthMismatch, len(a.Data), a.Extent, a.ElemSize, want)
	}
	return nil
}

// Pack copies the element of src at every selected coordinate, in
// canonical order, into a new value buffer of sel.Len()*src.ElemSize bytes.
func Pack(sel *Selection, src *DenseArray) ([]byte, error) {
	if err := src.check(); err != nil {
		return nil, err
	}
	es := uint64(src.ElemSize)
	out := make([]byte, 0, sel.Len()*es)
	same := sel.Extent().Equal(src.Extent)
	for idx := range sel.Indices() {
		if !same {
			c := sel.Extent().Coordinate(idx, nil)
			if !src.Extent.Contains(c) {
				return nil, fmt.Errorf("%w: %v not in source %s", ErrOutOfBounds, c, src.Extent)
			}
			idx = src.Extent.Linear(c)
		}
		out = append(out, src.Data[idx*es:(idx+1)*es]...)
	}
	return out, nil
}

// Unpack rebuilds a dense array of target extent: every cell holds fill
// except the selected ones, which take successive elements of values.
func Unpack(values []byte, sel *Selection, target Extent, elemSize int, fill []byte) (*DenseArray, error) {
	if uint64(len(values)) != sel.Len()*uint64(elemSize) {
		return nil, fmt.Errorf("%w: %d value bytes for %d selected elements of %d bytes",
			ErrLengthMismatch, len(values), sel.Len(), elemSize)
	}
	dst, err := NewDenseArray(target, elemSize, fill)
	if err != nil {
		return nil, err
	}
	if err := Scatter(dst, sel, values); err != nil {
		return nil, err
	}
	return dst, nil
}

// Scatter overwrites the selected cells of dst with successive elements of
// values, leaving the other cells untouched.
func Scatter(dst *DenseArray, sel *Selection, values []byte) error {
	if err := dst.check(); err != nil {
		return err
	}
	es := uint64(dst.ElemSize)
	if uint64(len(values)) != sel.Len()*es {
		return fmt.Errorf("%w: %d value bytes for %d selected elements of %d bytes",
			ErrLengthMismatch, len(values), sel.Len(), es)
	}
	same := sel.Extent().Equal(dst.Extent)
	var i uint64
	for idx := range sel.Indices() {
		if !same {
			c := sel.Extent().Coordinate(idx, nil)
			if !dst.Extent.Contains(c) {
				return fmt.Errorf("%w: %v not in target %s", ErrOutOfBounds, c, dst.Extent)
			}
			idx = dst.Extent.Linear(c)
		}
		copy(dst.Data[idx*es:(idx+1)*es], values[i*es:(i+1)*es])
		i++
	}
	return nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
