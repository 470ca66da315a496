package structchunk

import (
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func randomSelection(t *testing.T, rng *rand.Rand, e Extent, n int) *Selection {
	t.Helper()
	sel := mustSelection(t, e)
	for i := 0; i < n; i++ {
		c := make(Coordinate, len(e))
		for j, d := range e {
			c[j] = rng.Uint64N(d)
		}
		require.NoError(t, sel.Add(c))
	}
	return sel
}

func TestSelectionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	extents := []Extent{
		{1}, {300}, {7, 9}, {10, 100}, {3, 300, 2}, {2, 3, 4, 5}, {70000, 3},
	}
	for _, e := range extents {
		for _, f := range []SelectionFormat{FormatBlocks, FormatRoaring} {
			for _, n := range []int{0, 1, 5, 50, 500} {
				sel := randomSelection(t, rng, e, n)
				enc, err := EncodeSelection(sel, f)
				require.NoError(t, err)
				assert.Equal(t, uint64(len(enc)), binary.LittleEndian.Uint64(enc[8:]))

				back, err := DecodeSelection(enc, e)
				require.NoError(t, err, "%s %s %d", e, f, n)
				require.True(t, sel.Equal(back), "%s %s %d", e, f, n)
			}
		}
	}
}

func TestSelectionRoundTripGenerated(t *testing.T) {
	e := Extent{64, 200}
	for _, p := range policies {
		for density := 1; density <= 20; density++ {
			sel, err := Generate(e, density, p, NewRand(2, p, density))
			require.NoError(t, err)
			for _, f := range []SelectionFormat{FormatBlocks, FormatRoaring} {
				enc, err := EncodeSelection(sel, f)
				require.NoError(t, err)
				back, err := DecodeSelection(enc, e)
				require.NoError(t, err)
				require.True(t, sel.Equal(back))
			}
		}
	}
}

func TestEncodeRandomBlockIsOneBlock(t *testing.T) {
	e := Extent{100, 100}
	sel, err := Generate(e, 16, RandomBlock, NewRand(2, RandomBlock, 16))
	require.NoError(t, err)
	enc, err := EncodeSelection(sel, FormatBlocks)
	require.NoError(t, err)

	// header, 2 one byte extent fields, count, one block of 4 fields
	require.Len(t, enc, selectionHeader+2+8+4)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(enc[selectionHeader+2:]))
	assert.Equal(t, []byte{40, 40}, enc[len(enc)-2:])
}

func TestEncodeFieldWidth(t *testing.T) {
	cases := []struct {
		e Extent
		w byte
	}{
		{Extent{255}, 1},
		{Extent{256}, 2},
		{Extent{2, 65535}, 2},
		{Extent{65536}, 4},
	}
	for _, c := range cases {
		enc, err := EncodeSelection(mustSelection(t, c.e), FormatBlocks)
		require.NoError(t, err)
		assert.Equal(t, c.w, enc[7], c.e.String())
	}
}

func TestDecodeMalformed(t *testing.T) {
	e := Extent{10, 10}
	sel := mustSelection(t, e, Coordinate{1, 1}, Coordinate{5, 7})
	good, err := EncodeSelection(sel, FormatBlocks)
	require.NoError(t, err)
	goodRoaring, err := EncodeSelection(sel, FormatRoaring)
	require.NoError(t, err)

	mutate := func(b []byte, f func([]byte) []byte) []byte {
		c := append([]byte{}, b...)
		return f(c)
	}
	setLen := func(b []byte) []byte {
		binary.LittleEndian.PutUint64(b[8:], uint64(len(b)))
		return b
	}

	cases := map[string][]byte{
		"empty":     {},
		"short":     good[:10],
		"magic":     mutate(good, func(b []byte) []byte { b[0] = 'X'; return b }),
		"version":   mutate(good, func(b []byte) []byte { b[4] = 9; return b }),
		"format":    mutate(good, func(b []byte) []byte { b[5] = 7; return b }),
		"rank":      mutate(good, func(b []byte) []byte { b[6] = 3; return b }),
		"width":     mutate(good, func(b []byte) []byte { b[7] = 3; return b }),
		"truncated": setLen(mutate(good, func(b []byte) []byte { return b[:len(b)-1] })),
		"trailing":  setLen(mutate(good, func(b []byte) []byte { return append(b, 0) })),
		"length":    mutate(good, func(b []byte) []byte { return b[:len(b)-1] }),
		"extent":    mutate(good, func(b []byte) []byte { b[selectionHeader] = 11; return b }),
		"count": mutate(good, func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[selectionHeader+2:], 1<<62)
			return b
		}),
		// first block starts at row 1, push it to row 10
		"outside": mutate(good, func(b []byte) []byte { b[selectionHeader+10] = 10; return b }),
		"zero size": mutate(good, func(b []byte) []byte { b[selectionHeader+12] = 0; return b }),
		"overlap": mutate(good, func(b []byte) []byte {
			// second block becomes a copy of the first
			copy(b[selectionHeader+14:], b[selectionHeader+10:selectionHeader+14])
			return b
		}),
		"roaring garbage": setLen(mutate(goodRoaring, func(b []byte) []byte {
			return append(b[:selectionHeader+2], 0xff, 0xff, 0xff, 0xff, 0x01)
		})),
		"roaring trailing": setLen(mutate(goodRoaring, func(b []byte) []byte { return append(b, 0, 0) })),
	}
	for name, b := range cases {
		_, err := DecodeSelection(b, e)
		assert.ErrorIs(t, err, ErrMalformedSelection, name)
	}

	// a roaring body with offsets past the extent
	big := mustSelection(t, Extent{20, 10}, Coordinate{15, 0})
	enc, err := EncodeSelection(big, FormatRoaring)
	require.NoError(t, err)
	enc[selectionHeader] = 10
	_, err = DecodeSelection(enc, e)
	assert.ErrorIs(t, err, ErrMalformedSelection)

	_, err = DecodeSelection(good, Extent{10, 0})
	assert.ErrorIs(t, err, ErrInvalidExtent)
}

func TestEncodeRoaringKeepsSelection(t *testing.T) {
	sel := mustSelection(t, Extent{4, 100})
	for j := uint64(0); j < 100; j++ {
		require.NoError(t, sel.Add(Coordinate{2, j}))
	}
	before := sel.bits.Clone()
	require.False(t, sel.bits.HasRunCompression())

	var eg errgroup.Group
	encoded := make([][]byte, 4)
	for i := range encoded {
		eg.Go(func() (err error) {
			encoded[i], err = EncodeSelection(sel, FormatRoaring)
			return err
		})
	}
	require.NoError(t, eg.Wait())
	for _, enc := range encoded[1:] {
		assert.Equal(t, encoded[0], enc)
	}

	// the encoded body is run optimized, the caller's bitmap is not
	assert.False(t, sel.bits.HasRunCompression())
	assert.True(t, sel.bits.Equals(before))
	got, err := DecodeSelection(encoded[0], sel.Extent())
	require.NoError(t, err)
	assert.True(t, got.Equal(sel))
}

func TestParseSelectionFormat(t *testing.T) {
	f, err := ParseSelectionFormat("roaring")
	require.NoError(t, err)
	assert.Equal(t, FormatRoaring, f)
	f, err = ParseSelectionFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatBlocks, f)
	_, err = ParseSelectionFormat("hyperslab")
	assert.Error(t, err)
}
