package structchunk

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackFidelity(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	for _, e := range []Extent{{17}, {6, 11}, {3, 4, 5}, {2, 3, 2, 3}} {
		for _, es := range []int{1, 4, 8} {
			src, err := NewDenseArray(e, es, nil)
			require.NoError(t, err)
			for i := range src.Data {
				src.Data[i] = byte(rng.IntN(256))
			}
			sel := randomSelection(t, rng, e, int(e.NumElements()/3))
			fill := bytes.Repeat([]byte{0xab}, es)

			vals, err := Pack(sel, src)
			require.NoError(t, err)
			require.Len(t, vals, int(sel.Len())*es)

			got, err := Unpack(vals, sel, e, es, fill)
			require.NoError(t, err)

			var idx uint64
			for c := range allCoordinates(e) {
				want := fill
				if sel.Contains(c) {
					want, err = src.At(c)
					require.NoError(t, err)
				}
				have, err := got.At(c)
				require.NoError(t, err)
				require.Equal(t, want, have, "%v", c)
				idx++
			}
			require.Equal(t, e.NumElements(), idx)
		}
	}
}

func allCoordinates(e Extent) func(func(Coordinate) bool) {
	return func(yield func(Coordinate) bool) {
		for i := uint64(0); i < e.NumElements(); i++ {
			if !yield(e.Coordinate(i, nil)) {
				return
			}
		}
	}
}

func TestPackOrder(t *testing.T) {
	e := Extent{3, 3}
	src, err := NewDenseArray(e, 1, nil)
	require.NoError(t, err)
	for i := range src.Data {
		src.Data[i] = byte(i * 10)
	}
	// insertion order does not matter, values come out row-major
	sel := mustSelection(t, e, Coordinate{2, 2}, Coordinate{0, 1}, Coordinate{1, 0})
	vals, err := Pack(sel, src)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 30, 80}, vals)
}

func TestPackOutOfBounds(t *testing.T) {
	sel := mustSelection(t, Extent{4, 4}, Coordinate{3, 3})
	src, err := NewDenseArray(Extent{2, 2}, 1, nil)
	require.NoError(t, err)
	_, err = Pack(sel, src)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// a smaller selection extent maps by coordinate
	small := mustSelection(t, Extent{2, 2}, Coordinate{1, 1})
	big, err := NewDenseArray(Extent{4, 4}, 1, nil)
	require.NoError(t, err)
	big.Data[5] = 42
	vals, err := Pack(small, big)
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, vals)
}

func TestUnpackLengthMismatch(t *testing.T) {
	sel := mustSelection(t, Extent{4, 4}, Coordinate{0, 0}, Coordinate{1, 1})
	_, err := Unpack([]byte{1, 2, 3}, sel, Extent{4, 4}, 1, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = Unpack([]byte{1, 2, 3}, sel, Extent{4, 4}, 2, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Unpack([]byte{1, 2}, sel, Extent{4, 4}, 1, []byte{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	got, err := Unpack(nil, mustSelection(t, Extent{2}), Extent{2}, 1, []byte{5})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 5}, got.Data)
}

func TestDenseArray(t *testing.T) {
	_, err := NewDenseArray(Extent{0}, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidExtent)
	_, err = NewDenseArray(Extent{2}, 0, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	a, err := NewDenseArray(Extent{2, 2}, 2, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 1, 2, 1, 2, 1, 2}, a.Data)
	_, err = a.At(Coordinate{2, 0})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	a.Data = a.Data[:3]
	_, err = Pack(mustSelection(t, Extent{2, 2}), a)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
