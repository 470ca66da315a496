package structchunk

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// SelectionFormat identifies the body layout of an encoded selection.
type SelectionFormat uint8

const (
	// FormatBlocks stores a list of rectangular blocks.
	FormatBlocks SelectionFormat = 0
	// FormatRoaring stores the portable serialization of the row-major
	// offset bitmap.
	FormatRoaring SelectionFormat = 1
)

// ParseSelectionFormat accepts "blocks" or "roaring".
func ParseSelectionFormat(s string) (SelectionFormat, error) {
	switch s {
	case "", "blocks":
		return FormatBlocks, nil
	case "roaring":
		return FormatRoaring, nil
	}
	return 0, fmt.Errorf("unsupported selection format %q", s)
}

func (f SelectionFormat) String() string {
	switch f {
	case FormatBlocks:
		return "blocks"
	case FormatRoaring:
		return "roaring"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Encoded selection layout, little endian:
//
//	magic   [4]byte "SCSL"
//	version uint8
//	format  uint8
//	rank    uint8
//	width   uint8   bytes per coordinate field: 1, 2, 4 or 8
//	length  uint64  total encoded length, header included
//	extent  rank fields
//	body
//
// The blocks body is a uint64 block count followed by, per block, rank
// start fields and rank size fields. Blocks are sorted by start.
const (
	selectionMagic   = "SCSL"
	selectionVersion = 1
	selectionHeader  = 16
)

// EncodeSelection serializes sel. The result is self describing: decoding
// needs only the chunk extent.
func EncodeSelection(sel *Selection, format SelectionFormat) ([]byte, error) {
	ext := sel.Extent()
	var maxDim uint64
	for _, d := range ext {
		maxDim = max(maxDim, d)
	}
	w := fieldWidth(maxDim)
	rank := ext.Rank()
	if rank > 255 {
		return nil, fmt.Errorf("%w: rank %d too large to encode", ErrInvalidExtent, rank)
	}

	buf := make([]byte, selectionHeader, selectionHeader+rank*w+8)
	copy(buf, selectionMagic)
	buf[4] = selectionVersion
	buf[5] = byte(format)
	buf[6] = byte(rank)
	buf[7] = byte(w)
	for _, d := range ext {
		buf = appendField(buf, d, w)
	}

	switch format {
	case FormatBlocks:
		blocks := sel.Blocks()
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(blocks)))
		for _, b := range blocks {
			for _, v := range b.Start {
				buf = appendField(buf, v, w)
			}
			for _, v := range b.Size {
				buf = appendField(buf, v, w)
			}
		}
	case FormatRoaring:
		bm := sel.bits.Clone()
		bm.RunOptimize()
		body, err := bm.ToBytes()
		if err != nil {
			return nil, err
		}
		buf = append(buf, body...)
	default:
		return nil, fmt.Errorf("unsupported selection format %d", format)
	}

	binary.LittleEndian.PutUint64(buf[8:], uint64(len(buf)))
	return buf, nil
}

// DecodeSelection rebuilds the selection encoded in b for a chunk of the
// given extent. Any inconsistency between the bytes and their own header,
// or between the header and extent, is ErrMalformedSelection.
func DecodeSelection(b []byte, extent Extent) (*Selection, error) {
	sel, err := NewSelection(extent)
	if err != nil {
		return nil, err
	}
	if len(b) < selectionHeader {
		return nil, malformed("%d bytes is shorter than the header", len(b))
	}
	if string(b[:4]) != selectionMagic {
		return nil, malformed("bad magic %q", b[:4])
	}
	if b[4] != selectionVersion {
		return nil, malformed("unsupported version %d", b[4])
	}
	format, rank, w := SelectionFormat(b[5]), int(b[6]), int(b[7])
	if rank != extent.Rank() {
		return nil, malformed("rank %d, want %d", rank, extent.Rank())
	}
	if w != 1 && w != 2 && w != 4 && w != 8 {
		return nil, malformed("field width %d", w)
	}
	if n := binary.LittleEndian.Uint64(b[8:]); n != uint64(len(b)) {
		return nil, malformed("declared length %d, have %d bytes", n, len(b))
	}

	r := fieldReader{b: b[selectionHeader:], w: w}
	for i := range extent {
		d, ok := r.next()
		if !ok {
			return nil, malformed("truncated extent")
		}
		if d != extent[i] {
			return nil, malformed("encoded extent dimension %d is %d, want %d", i, d, extent[i])
		}
	}

	switch format {
	case FormatBlocks:
		if len(r.b) < 8 {
			return nil, malformed("missing block count")
		}
		count := binary.LittleEndian.Uint64(r.b)
		r.b = r.b[8:]
		if count > uint64(len(r.b)) || uint64(len(r.b)) != count*uint64(2*rank*w) {
			return nil, malformed("%d blocks do not fit %d body bytes", count, len(r.b))
		}
		var total uint64
		for i := uint64(0); i < count; i++ {
			blk := Block{Start: make(Coordinate, rank), Size: make(Extent, rank)}
			for j := range blk.Start {
				blk.Start[j], _ = r.next()
			}
			for j := range blk.Size {
				blk.Size[j], _ = r.next()
			}
			if !blk.Within(extent) {
				return nil, malformed("block %d (%v+%s) outside %s", i, blk.Start, blk.Size, extent)
			}
			if err := sel.AddBlock(blk); err != nil {
				return nil, malformed("block %d: %v", i, err)
			}
			total += blk.NumElements()
		}
		if total != sel.Len() {
			return nil, malformed("blocks overlap")
		}
	case FormatRoaring:
		if err := unmarshalBitmap(sel.bits, r.b); err != nil {
			return nil, malformed("roaring body: %v", err)
		}
		if n := sel.bits.GetSerializedSizeInBytes(); n != uint64(len(r.b)) {
			return nil, malformed("roaring body is %d bytes, declared %d", n, len(r.b))
		}
		if !sel.bits.IsEmpty() && uint64(sel.bits.Maximum()) >= extent.NumElements() {
			return nil, malformed("offset %d outside %s", sel.bits.Maximum(), extent)
		}
	default:
		return nil, malformed("unknown format %d", format)
	}
	return sel, nil
}

func unmarshalBitmap(bm *roaring.Bitmap, b []byte) (err error) {
	// corrupt input can panic inside the container decoders
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return bm.UnmarshalBinary(b)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSelection, fmt.Sprintf(format, args...))
}

func fieldWidth(v uint64) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	case v <= 0xffffffff:
		return 4
	}
	return 8
}

func appendField(b []byte, v uint64, w int) []byte {
	switch w {
	case 1:
		return append(b, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(b, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(b, uint32(v))
	}
	return binary.LittleEndian.AppendUint64(b, v)
}

type fieldReader struct {
	b []byte
	w int
}

func (r *fieldReader) next() (uint64, bool) {
	if len(r.b) < r.w {
		return 0, false
	}
	var v uint64
	switch r.w {
	case 1:
		v = uint64(r.b[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(r.b))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(r.b))
	default:
		v = binary.LittleEndian.Uint64(r.b)
	}
	r.b = r.b[r.w:]
	return v, true
}
