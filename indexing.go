package structchunk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a logical position inside a chunk, one value per axis.
type Coordinate []uint64

// Extent is the shape of a chunk or of a rectangular sub-region of one.
// Elements are laid out in row-major ("C") order: the last axis varies
// fastest.
type Extent []uint64

// MaxChunkElements is the largest number of elements a chunk may hold.
// Selections index chunk elements with 32 bit linear offsets.
const MaxChunkElements = math.MaxUint32

// ParseExtent reads an extent written as dimensions joined by "x",
// eg. "10x100".
func ParseExtent(s string) (Extent, error) {
	parts := strings.Split(s, "x")
	e := make(Extent, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExtent, s, err)
		}
		e[i] = d
	}
	return e, e.Validate()
}

func (e Extent) Rank() int { return len(e) }

// Validate reports ErrInvalidExtent for rank zero extents, zero length
// dimensions and extents too large to index.
func (e Extent) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("%w: rank must be at least 1", ErrInvalidExtent)
	}
	n := uint64(1)
	for i, d := range e {
		if d == 0 {
			return fmt.Errorf("%w: dimension %d is zero", ErrInvalidExtent, i)
		}
		if n > MaxChunkElements/d {
			return fmt.Errorf("%w: %s exceeds %d elements", ErrInvalidExtent, e, uint64(MaxChunkElements))
		}
		n *= d
	}
	return nil
}

// NumElements is the product of all dimensions.
func (e Extent) NumElements() uint64 {
	if len(e) == 0 {
		return 0
	}
	n := uint64(1)
	for _, d := range e {
		n *= d
	}
	return n
}

func (e Extent) Contains(c Coordinate) bool {
	if len(c) != len(e) {
		return false
	}
	for i := range e {
		if c[i] >= e[i] {
			return false
		}
	}
	return true
}

// Linear returns the row-major offset of c. c must be inside e.
func (e Extent) Linear(c Coordinate) uint64 {
	var idx uint64
	for i := range e {
		idx = idx*e[i] + c[i]
	}
	return idx
}

// Coordinate is the inverse of Linear. dst is reused when it has the right
// rank.
func (e Extent) Coordinate(idx uint64, dst Coordinate) Coordinate {
	if len(dst) != len(e) {
		dst = make(Coordinate, len(e))
	}
	for i := len(e) - 1; i >= 0; i-- {
		dst[i] = idx % e[i]
		idx /= e[i]
	}
	return dst
}

func (e Extent) Equal(o Extent) bool {
	if len(e) != len(o) {
		return false
	}
	for i := range e {
		if e[i] != o[i] {
			return false
		}
	}
	return true
}

func (e Extent) String() string {
	parts := make([]string, len(e))
	for i, d := range e {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return strings.Join(parts, "x")
}

// Block is a rectangular region of a chunk: a start coordinate plus the
// size of the region along every axis.
type Block struct {
	Start Coordinate
	Size  Extent
}

func (b Block) NumElements() uint64 { return b.Size.NumElements() }

// Within reports whether the whole block lies inside e.
func (b Block) Within(e Extent) bool {
	if len(b.Start) != len(e) || len(b.Size) != len(e) {
		return false
	}
	for i := range e {
		if b.Size[i] == 0 || b.Start[i] >= e[i] || b.Size[i] > e[i]-b.Start[i] {
			return false
		}
	}
	return true
}

// ChunkKey names the chunk at grid position idx, eg. "0.0" for the first
// chunk of a two dimensional block.
func ChunkKey(idx []uint64) string {
	if len(idx) == 0 {
		return "0"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ".")
}
