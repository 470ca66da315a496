package structchunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policies = []Policy{ScatteredRows, RandomBlock, ContiguousRows}

func TestParsePolicy(t *testing.T) {
	for _, p := range policies {
		got, err := ParsePolicy(int(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.NotEqual(t, "invalid option", got.Human())
	}
	for _, n := range []int{0, 4, -1} {
		_, err := ParsePolicy(n)
		assert.Error(t, err)
	}
	assert.Equal(t, "random-block", RandomBlock.String())
	assert.Equal(t, "policy(7)", Policy(7).String())
}

func TestGenerateCardinality(t *testing.T) {
	extents := []Extent{{10, 10}, {10, 100}, {37, 53}, {8, 1000}, {100, 100}, {1, 250}}
	for _, e := range extents {
		for _, p := range policies {
			for density := 1; density <= 20; density++ {
				sel, err := Generate(e, density, p, NewRand(2, p, density))
				require.NoError(t, err)
				require.Equal(t, ExpectedLen(e, density, p), sel.Len(), "%s %s %d%%", e, p, density)
			}
		}
	}
}

func TestGenerateClosedForms(t *testing.T) {
	e := Extent{10, 100}
	// R * floor(C*p/100)
	assert.Equal(t, uint64(10*7), ExpectedLen(e, 7, ScatteredRows))
	assert.Equal(t, uint64(10*7), ExpectedLen(e, 7, ContiguousRows))
	// floor(R*sqrt(p/100)) * floor(C*sqrt(p/100))
	assert.Equal(t, uint64(5*50), ExpectedLen(e, 25, RandomBlock))
	assert.Equal(t, uint64(3*31), ExpectedLen(e, 10, RandomBlock))
}

func TestGenerateScatteredRowsScenario(t *testing.T) {
	e := Extent{10, 10}
	sel, err := Generate(e, 1, ScatteredRows, NewRand(2, ScatteredRows, 1))
	require.NoError(t, err)
	require.Equal(t, uint64(10), sel.Len())

	rows := map[uint64]int{}
	for c := range sel.Coordinates() {
		rows[c[0]]++
		assert.Less(t, c[1], uint64(10))
	}
	assert.Len(t, rows, 10)
	for r, n := range rows {
		assert.Equal(t, 1, n, "row %d", r)
	}

	enc, err := EncodeSelection(sel, FormatBlocks)
	require.NoError(t, err)
	back, err := DecodeSelection(enc, e)
	require.NoError(t, err)
	assert.True(t, sel.Equal(back))
}

func TestGenerateScatteredRowsSections(t *testing.T) {
	e := Extent{20, 100}
	density := 4
	section := uint64(100 / density)
	sel, err := Generate(e, density, ScatteredRows, NewRand(9, ScatteredRows, density))
	require.NoError(t, err)

	perSection := map[[2]uint64]int{}
	for c := range sel.Coordinates() {
		perSection[[2]uint64{c[0], c[1] / section}]++
	}
	assert.Len(t, perSection, 20*4)
	for k, n := range perSection {
		assert.Equal(t, 1, n, "row %d section %d", k[0], k[1])
	}
}

func TestGenerateRandomBlockScenario(t *testing.T) {
	e := Extent{100, 100}
	for seed := uint64(0); seed < 50; seed++ {
		sel, err := Generate(e, 25, RandomBlock, NewRand(seed, RandomBlock, 25))
		require.NoError(t, err)
		blocks := sel.Blocks()
		require.Len(t, blocks, 1)
		assert.Equal(t, Extent{50, 50}, blocks[0].Size)
		assert.Less(t, blocks[0].Start[0], uint64(50))
		assert.Less(t, blocks[0].Start[1], uint64(50))
	}
}

func TestGenerateRandomBlockInBounds(t *testing.T) {
	for _, e := range []Extent{{3, 7}, {2, 2}, {1, 9}, {100, 100}} {
		for density := 1; density <= 100; density++ {
			sel, err := Generate(e, density, RandomBlock, NewRand(5, RandomBlock, density))
			require.NoError(t, err)
			for _, b := range sel.Blocks() {
				assert.True(t, b.Within(e))
			}
		}
	}
}

func TestGenerateContiguousRows(t *testing.T) {
	e := Extent{6, 50}
	sel, err := Generate(e, 10, ContiguousRows, NewRand(3, ContiguousRows, 10))
	require.NoError(t, err)
	blocks := sel.Blocks()
	// one run of 5 per row; runs merge only where consecutive rows agree
	var total uint64
	for _, b := range blocks {
		assert.Equal(t, uint64(5), b.Size[1])
		total += b.NumElements()
	}
	assert.Equal(t, uint64(30), total)

	full, err := Generate(e, 100, ContiguousRows, NewRand(3, ContiguousRows, 100))
	require.NoError(t, err)
	assert.Equal(t, e.NumElements(), full.Len())
}

func TestGenerateDegenerate(t *testing.T) {
	// floor(10*5/100) == 0: every row is empty
	sel, err := Generate(Extent{4, 10}, 5, ContiguousRows, NewRand(1, ContiguousRows, 5))
	require.NoError(t, err)
	assert.True(t, sel.IsEmpty())

	// a 1% block of a 5x5 chunk is 0 wide
	sel, err = Generate(Extent{5, 5}, 1, RandomBlock, NewRand(1, RandomBlock, 1))
	require.NoError(t, err)
	assert.True(t, sel.IsEmpty())

	enc, err := EncodeSelection(sel, FormatBlocks)
	require.NoError(t, err)
	back, err := DecodeSelection(enc, Extent{5, 5})
	require.NoError(t, err)
	assert.True(t, back.IsEmpty())

	for _, density := range []int{0, 101, -3} {
		_, err := Generate(Extent{4, 4}, density, ScatteredRows, NewRand(1, ScatteredRows, 1))
		assert.Error(t, err)
	}
	_, err = Generate(Extent{4, 4}, 10, Policy(9), NewRand(1, 9, 10))
	assert.Error(t, err)
	_, err = Generate(Extent{4, 0}, 10, ScatteredRows, NewRand(1, ScatteredRows, 10))
	assert.ErrorIs(t, err, ErrInvalidExtent)
}

func TestGenerateDeterminism(t *testing.T) {
	e := Extent{40, 120}
	for _, p := range policies {
		for _, f := range []SelectionFormat{FormatBlocks, FormatRoaring} {
			a, err := Generate(e, 13, p, NewRand(2, p, 13))
			require.NoError(t, err)
			b, err := Generate(e, 13, p, NewRand(2, p, 13))
			require.NoError(t, err)
			ea, err := EncodeSelection(a, f)
			require.NoError(t, err)
			eb, err := EncodeSelection(b, f)
			require.NoError(t, err)
			assert.Equal(t, ea, eb, "%s %s", p, f)
		}
	}

	assert.NotEqual(t, LevelSeed(2, ScatteredRows, 1), LevelSeed(2, ScatteredRows, 2))
	assert.NotEqual(t, LevelSeed(2, ScatteredRows, 1), LevelSeed(2, RandomBlock, 1))
	assert.NotEqual(t, LevelSeed(2, ScatteredRows, 1), LevelSeed(3, ScatteredRows, 1))
}

func TestBlockSide(t *testing.T) {
	assert.Equal(t, uint64(50), BlockSide(100, 25))
	assert.Equal(t, uint64(100), BlockSide(100, 100))
	assert.Equal(t, uint64(10), BlockSide(100, 1))
	assert.Equal(t, uint64(31), BlockSide(100, 10))
	assert.Equal(t, uint64(0), BlockSide(5, 1))
	// no overflow for the largest dimensions
	assert.Equal(t, uint64(1)<<31, BlockSide(uint64(1)<<32, 25))
}
