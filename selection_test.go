package structchunk

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSelection(t *testing.T, e Extent, coords ...Coordinate) *Selection {
	t.Helper()
	sel, err := NewSelection(e)
	require.NoError(t, err)
	for _, c := range coords {
		require.NoError(t, sel.Add(c))
	}
	return sel
}

func TestSelectionCanonicalOrder(t *testing.T) {
	e := Extent{4, 4}
	a := mustSelection(t, e, Coordinate{3, 1}, Coordinate{0, 2}, Coordinate{1, 0}, Coordinate{0, 2})
	b := mustSelection(t, e, Coordinate{1, 0}, Coordinate{0, 2}, Coordinate{3, 1})

	assert.Equal(t, uint64(3), a.Len())
	assert.True(t, a.Equal(b))
	assert.Equal(t, []Coordinate{{0, 2}, {1, 0}, {3, 1}}, slices.Collect(a.Coordinates()))
	assert.Equal(t, []uint64{2, 4, 13}, slices.Collect(a.Indices()))

	idx, err := a.Nth(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), idx)
	_, err = a.Nth(3)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	assert.ErrorIs(t, a.Add(Coordinate{4, 0}), ErrOutOfBounds)
	assert.ErrorIs(t, a.Add(Coordinate{0}), ErrOutOfBounds)

	empty := mustSelection(t, Extent{4, 3})
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.Contains(Coordinate{0, 2}))
}

func TestSelectionAddBlock(t *testing.T) {
	sel := mustSelection(t, Extent{5, 6, 7})
	b := Block{Start: Coordinate{1, 2, 3}, Size: Extent{2, 3, 4}}
	require.NoError(t, sel.AddBlock(b))
	assert.Equal(t, uint64(24), sel.Len())
	assert.True(t, sel.Contains(Coordinate{2, 4, 6}))
	assert.False(t, sel.Contains(Coordinate{3, 4, 6}))

	// overlapping union keeps each coordinate once
	require.NoError(t, sel.AddBlock(Block{Start: Coordinate{1, 2, 3}, Size: Extent{1, 1, 4}}))
	assert.Equal(t, uint64(24), sel.Len())

	err := sel.AddBlock(Block{Start: Coordinate{4, 0, 0}, Size: Extent{2, 1, 1}})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSelectionBlocks(t *testing.T) {
	cases := []struct {
		name   string
		extent Extent
		add    []Block
		want   []Block
	}{
		{
			name:   "rectangle",
			extent: Extent{10, 10},
			add:    []Block{{Coordinate{2, 3}, Extent{4, 5}}},
			want:   []Block{{Coordinate{2, 3}, Extent{4, 5}}},
		},
		{
			name:   "rank one runs",
			extent: Extent{20},
			add:    []Block{{Coordinate{1}, Extent{3}}, {Coordinate{10}, Extent{2}}},
			want:   []Block{{Coordinate{1}, Extent{3}}, {Coordinate{10}, Extent{2}}},
		},
		{
			name:   "shifted rows do not merge",
			extent: Extent{4, 8},
			add:    []Block{{Coordinate{0, 0}, Extent{1, 2}}, {Coordinate{1, 1}, Extent{1, 2}}},
			want:   []Block{{Coordinate{0, 0}, Extent{1, 2}}, {Coordinate{1, 1}, Extent{1, 2}}},
		},
		{
			name:   "full rows",
			extent: Extent{3, 4},
			add:    []Block{{Coordinate{0, 0}, Extent{3, 4}}},
			want:   []Block{{Coordinate{0, 0}, Extent{3, 4}}},
		},
		{
			name:   "rank three",
			extent: Extent{2, 3, 4},
			add:    []Block{{Coordinate{0, 1, 1}, Extent{2, 2, 2}}},
			want: []Block{
				{Coordinate{0, 1, 1}, Extent{1, 2, 2}},
				{Coordinate{1, 1, 1}, Extent{1, 2, 2}},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sel := mustSelection(t, c.extent)
			for _, b := range c.add {
				require.NoError(t, sel.AddBlock(b))
			}
			assert.Equal(t, c.want, sel.Blocks())

			// the blocks cover exactly the selection
			back := mustSelection(t, c.extent)
			for _, b := range sel.Blocks() {
				require.NoError(t, back.AddBlock(b))
			}
			assert.True(t, sel.Equal(back))
		})
	}
	assert.Empty(t, mustSelection(t, Extent{3, 3}).Blocks())
}
