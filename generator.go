package structchunk

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/dchest/siphash"
)

// Policy selects how defined coordinates are placed inside a chunk.
type Policy int

const (
	// ScatteredRows picks one random column in every section of every row.
	ScatteredRows Policy = iota + 1
	// RandomBlock picks one rectangle shaped like the chunk, randomly placed.
	RandomBlock
	// ContiguousRows picks one randomly placed run of columns in every row.
	ContiguousRows
)

// ParsePolicy maps the numeric command line value (1, 2 or 3) to a Policy.
func ParsePolicy(n int) (Policy, error) {
	p := Policy(n)
	if _, ok := policyNames[p]; !ok {
		return 0, fmt.Errorf("selection policy can only be 1, 2, or 3. got %d", n)
	}
	return p, nil
}

var policyNames = map[Policy]string{
	ScatteredRows:  "scattered-rows",
	RandomBlock:    "random-block",
	ContiguousRows: "contiguous-rows",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Human describes the policy the way the benchmark banner prints it.
func (p Policy) Human() string {
	switch p {
	case ScatteredRows:
		return "randomly selected locations in each row"
	case RandomBlock:
		return "randomly selected rectangular in the whole chunk"
	case ContiguousRows:
		return "randomly selected continuous locations in each row"
	default:
		return "invalid option"
	}
}

// NewRand returns the deterministic random source used for one density
// level of a run.
func NewRand(seed uint64, p Policy, density int) *rand.Rand {
	s := LevelSeed(seed, p, density)
	return rand.New(rand.NewPCG(s, seed))
}

// LevelSeed derives the seed of a (run seed, policy, density) tuple so that
// density levels can be generated independently and in any order.
func LevelSeed(seed uint64, p Policy, density int) uint64 {
	var msg [16]byte
	binary.LittleEndian.PutUint64(msg[0:], uint64(p))
	binary.LittleEndian.PutUint64(msg[8:], uint64(density))
	return siphash.Hash(seed, ^seed, msg[:])
}

// Generate builds the selection for one chunk at the given density
// (percent, 1 to 100). The returned selection's Len is the number of
// defined coordinates; different policies give different counts for the
// same density.
//
// Axes before the last one are flattened into rows, so a rank 1 extent is
// a single row. RandomBlock scales every axis.
func Generate(extent Extent, density int, p Policy, rng *rand.Rand) (*Selection, error) {
	if density < 1 || density > 100 {
		return nil, fmt.Errorf("density must be between 1 and 100. got %d", density)
	}
	sel, err := NewSelection(extent)
	if err != nil {
		return nil, err
	}

	last := len(extent) - 1
	cols := extent[last]
	rows := uint64(1)
	if last > 0 {
		rows = Extent(extent[:last]).NumElements()
	}

	switch p {
	case ScatteredRows:
		perRow := cols * uint64(density) / 100
		section := uint64(100 / density)
		if perRow == 0 {
			// sections are wider than the row: still one point per row
			perRow = 1
		}
		for r := uint64(0); r < rows; r++ {
			for j := uint64(0); j < perRow; j++ {
				lo := j * section
				width := min(section, cols-lo)
				sel.bits.Add(uint32(r*cols + lo + rng.Uint64N(width)))
			}
		}
	case RandomBlock:
		b := Block{Start: make(Coordinate, len(extent)), Size: make(Extent, len(extent))}
		for i, d := range extent {
			b.Size[i] = BlockSide(d, density)
			if b.Size[i] == 0 {
				return sel, nil
			}
			// origin from the upper-left quadrant, clamped to keep the block inside
			b.Start[i] = min(rng.Uint64N(max(d/2, 1)), d-b.Size[i])
		}
		if err := sel.AddBlock(b); err != nil {
			return nil, err
		}
	case ContiguousRows:
		run := cols * uint64(density) / 100
		if run == 0 {
			return sel, nil
		}
		for r := uint64(0); r < rows; r++ {
			start := r*cols + rng.Uint64N(cols-run+1)
			sel.bits.AddRange(start, start+run)
		}
	default:
		return nil, fmt.Errorf("unknown selection policy %d", int(p))
	}
	return sel, nil
}

// BlockSide is floor(d * sqrt(density/100)) computed without floating
// point, so a 25% block of a 100 wide axis is exactly 50 wide.
func BlockSide(d uint64, density int) uint64 {
	hi, lo := bits.Mul64(d, d)
	h, l := bits.Mul64(lo, uint64(density))
	q, _ := bits.Div64(hi*uint64(density)+h, l, 100)
	return isqrt(q)
}

// ExpectedLen is the closed form number of coordinates Generate selects.
func ExpectedLen(extent Extent, density int, p Policy) uint64 {
	last := len(extent) - 1
	cols := extent[last]
	rows := uint64(1)
	if last > 0 {
		rows = Extent(extent[:last]).NumElements()
	}
	switch p {
	case ScatteredRows:
		return rows * max(cols*uint64(density)/100, 1)
	case RandomBlock:
		n := uint64(1)
		for _, d := range extent {
			n *= BlockSide(d, density)
		}
		return n
	case ContiguousRows:
		return rows * (cols * uint64(density) / 100)
	}
	return 0
}

func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
