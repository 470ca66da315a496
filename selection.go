package structchunk

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Selection is the set of defined coordinates of one chunk. Coordinates are
// kept as row-major linear offsets, so iteration always visits them in
// canonical order no matter how the selection was built.
type Selection struct {
	extent Extent
	bits   *roaring.Bitmap
}

// NewSelection returns an empty selection over extent.
func NewSelection(extent Extent) (*Selection, error) {
	if err := extent.Validate(); err != nil {
		return nil, err
	}
	return &Selection{
		extent: append(Extent(nil), extent...),
		bits:   roaring.New(),
	}, nil
}

func (s *Selection) Extent() Extent { return s.extent }

// Add selects a single coordinate.
func (s *Selection) Add(c Coordinate) error {
	if !s.extent.Contains(c) {
		return fmt.Errorf("%w: %v not in %s", ErrOutOfBounds, c, s.extent)
	}
	s.bits.Add(uint32(s.extent.Linear(c)))
	return nil
}

// AddBlock unions a rectangular block into the selection. Coordinates that
// are already selected stay selected exactly once.
func (s *Selection) AddBlock(b Block) error {
	if !b.Within(s.extent) {
		return fmt.Errorf("%w: block %v+%s not in %s", ErrOutOfBounds, b.Start, b.Size, s.extent)
	}
	last := len(s.extent) - 1
	run := b.Size[last]
	// walk every row of the block; rows are contiguous along the last axis
	rows := Extent(b.Size[:last]).NumElements()
	if last == 0 {
		rows = 1
	}
	c := make(Coordinate, len(s.extent))
	copy(c, b.Start)
	for r := uint64(0); r < rows; r++ {
		if last > 0 {
			rem := r
			for i := last - 1; i >= 0; i-- {
				c[i] = b.Start[i] + rem%b.Size[i]
				rem /= b.Size[i]
			}
		}
		lo := s.extent.Linear(c)
		s.bits.AddRange(lo, lo+run)
	}
	return nil
}

// Len is the number of selected coordinates.
func (s *Selection) Len() uint64 { return s.bits.GetCardinality() }

func (s *Selection) IsEmpty() bool { return s.bits.IsEmpty() }

func (s *Selection) Contains(c Coordinate) bool {
	return s.extent.Contains(c) && s.bits.Contains(uint32(s.extent.Linear(c)))
}

// Equal reports whether both selections cover the same extent and the same
// coordinate set.
func (s *Selection) Equal(o *Selection) bool {
	return s.extent.Equal(o.extent) && s.bits.Equals(o.bits)
}

// Nth returns the linear offset of the k-th selected coordinate in
// canonical order, which is also the position of its value in a packed
// buffer.
func (s *Selection) Nth(k uint64) (uint64, error) {
	if k >= s.Len() {
		return 0, fmt.Errorf("%w: element %d of %d", ErrOutOfBounds, k, s.Len())
	}
	idx, err := s.bits.Select(uint32(k))
	return uint64(idx), err
}

// Indices yields the linear offsets of all selected coordinates in
// ascending order.
func (s *Selection) Indices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		it := s.bits.Iterator()
		for it.HasNext() {
			if !yield(uint64(it.Next())) {
				return
			}
		}
	}
}

// Coordinates yields every selected coordinate in row-major order. Each
// yielded coordinate is a fresh slice.
func (s *Selection) Coordinates() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		for idx := range s.Indices() {
			if !yield(s.extent.Coordinate(idx, nil)) {
				return
			}
		}
	}
}

// Blocks decomposes the selection into disjoint rectangular blocks sorted
// by start coordinate in row-major order. Runs along the last axis become
// one block each, and identical runs on consecutive rows are merged along
// the next-to-last axis, so a single rectangle always comes back as one
// block. The decomposition depends only on the coordinate set.
func (s *Selection) Blocks() []Block {
	var (
		blocks []Block
		last   = len(s.extent) - 1
		rowLen = s.extent[last]
		// open maps a run continuing onto the next row to its block
		open = map[runKey]int{}
	)
	emit := func(row, col, n uint64) {
		if last == 0 {
			blocks = append(blocks, Block{Start: Coordinate{col}, Size: Extent{n}})
			return
		}
		axisLen := s.extent[last-1]
		k := runKey{outer: row / axisLen, next: row % axisLen, col: col, n: n}
		if bi, ok := open[k]; ok {
			delete(open, k)
			blocks[bi].Size[last-1]++
			k.next++
			open[k] = bi
			return
		}
		start := s.extent.Coordinate(row*rowLen+col, nil)
		size := make(Extent, len(s.extent))
		for i := range size {
			size[i] = 1
		}
		size[last] = n
		blocks = append(blocks, Block{Start: start, Size: size})
		k.next++
		open[k] = len(blocks) - 1
	}

	var (
		started         bool
		row, col, n, pr uint64
	)
	for idx := range s.Indices() {
		r, c := idx/rowLen, idx%rowLen
		if started && r == row && idx == pr+1 {
			n++
			pr = idx
			continue
		}
		if started {
			emit(row, col, n)
		}
		started = true
		row, col, n, pr = r, c, 1, idx
	}
	if started {
		emit(row, col, n)
	}
	return blocks
}

type runKey struct {
	outer, next, col, n uint64
}
