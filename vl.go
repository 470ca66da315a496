package structchunk

import (
	"encoding/binary"
	"fmt"
)

// VLIndexEntry locates one variable-length element inside a blob.
type VLIndexEntry struct {
	Offset uint64
	Length uint64
}

// VLIndexEntrySize is the encoded size of one index entry: offset and
// length as little endian uint64.
const VLIndexEntrySize = 16

// PackVL lays the elements end to end in one blob and records an
// offset/length pair per element, in a single pass.
func PackVL(elements [][]byte) ([]VLIndexEntry, []byte) {
	var total int
	for _, el := range elements {
		total += len(el)
	}
	index := make([]VLIndexEntry, len(elements))
	blob := make([]byte, 0, total)
	for i, el := range elements {
		index[i] = VLIndexEntry{Offset: uint64(len(blob)), Length: uint64(len(el))}
		blob = append(blob, el...)
	}
	return index, blob
}

// UnpackVL slices every indexed element out of blob. Returned elements
// alias blob.
func UnpackVL(index []VLIndexEntry, blob []byte) ([][]byte, error) {
	out := make([][]byte, len(index))
	size := uint64(len(blob))
	for i, e := range index {
		end := e.Offset + e.Length
		if end < e.Offset || end > size {
			return nil, fmt.Errorf("%w: entry %d (offset %d, length %d) exceeds %d byte blob",
				ErrIndexOutOfRange, i, e.Offset, e.Length, size)
		}
		out[i] = blob[e.Offset:end:end]
	}
	return out, nil
}

// EncodeVLIndex writes the index as consecutive offset/length pairs.
func EncodeVLIndex(index []VLIndexEntry) []byte {
	b := make([]byte, 0, len(index)*VLIndexEntrySize)
	for _, e := range index {
		b = binary.LittleEndian.AppendUint64(b, e.Offset)
		b = binary.LittleEndian.AppendUint64(b, e.Length)
	}
	return b
}

func DecodeVLIndex(b []byte) ([]VLIndexEntry, error) {
	if len(b)%VLIndexEntrySize != 0 {
		return nil, fmt.Errorf("%w: %d index bytes is not a multiple of %d", ErrLengthMismatch, len(b), VLIndexEntrySize)
	}
	index := make([]VLIndexEntry, len(b)/VLIndexEntrySize)
	for i := range index {
		p := b[i*VLIndexEntrySize:]
		index[i] = VLIndexEntry{
			Offset: binary.LittleEndian.Uint64(p),
			Length: binary.LittleEndian.Uint64(p[8:]),
		}
	}
	return index, nil
}

// PadVL stores every element in a fixed slot of width bytes, zero padded.
// It is the fixed-size representation structured VL storage is compared
// against.
func PadVL(elements [][]byte, width int) ([]byte, error) {
	out := make([]byte, len(elements)*width)
	for i, el := range elements {
		if len(el) > width {
			return nil, fmt.Errorf("%w: element %d is %d bytes, slot is %d", ErrLengthMismatch, i, len(el), width)
		}
		copy(out[i*width:], el)
	}
	return out, nil
}
