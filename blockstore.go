package structchunk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrBlockClosed is returned for operations on a closed block handle.
var ErrBlockClosed = errors.New("block is closed")

// ChunkStore is the storage contract the structured chunk code writes
// through: create a block, write or read its bytes, and ask how many bytes
// the stored form consumes.
type ChunkStore interface {
	CreateBlock(ctx context.Context, name string, spec BlockSpec) (*BlockHandle, error)
	// WriteBlock writes data to the block. With a nil selection data is the
	// whole block; otherwise data holds one element per selected coordinate
	// in canonical order.
	WriteBlock(ctx context.Context, h *BlockHandle, sel *Selection, data []byte) error
	// ReadBlock fills out with the whole block, or with the selected
	// elements in canonical order.
	ReadBlock(ctx context.Context, h *BlockHandle, sel *Selection, out []byte) error
	// BlockStorageBytes is the number of bytes the block's stored chunk
	// consumes, after any compression. Unwritten blocks consume 0.
	BlockStorageBytes(ctx context.Context, h *BlockHandle) (uint64, error)
	CloseBlock(h *BlockHandle) error
}

// BlockSpec describes a block to create.
type BlockSpec struct {
	Shape Extent
	Dtype Dtype
	// Chunks must equal Shape; nil means one chunk covering the block.
	Chunks     Extent
	Compressor *CompressionMeta
	// Fill is the value of unwritten elements, nil for zero bytes.
	Fill []byte
}

// BlockHandle is an open block of a BlockStore.
type BlockHandle struct {
	path   Path
	mode   PersistenceMode
	meta   *BlockMeta
	fill   []byte
	closed bool
}

func (h *BlockHandle) Path() string { return h.path.String() }

// Meta returns a copy of the block's metadata.
func (h *BlockHandle) Meta() BlockMeta { return *h.meta }

func (h *BlockHandle) chunkKey() string {
	return h.path.Join(ChunkKey(make([]uint64, len(h.meta.Chunks)))).String()
}

func (h *BlockHandle) usable(write bool) error {
	if h.closed {
		return fmt.Errorf("%w: %s", ErrBlockClosed, h.path)
	}
	if write && h.mode == ModeRead {
		return fmt.Errorf("block %s is open read only", h.path)
	}
	return nil
}

// BlockStore implements ChunkStore on top of a key/value Store. Every
// block keeps its metadata at "<path>/.sblock" and its single chunk at
// "<path>/0.0" (one index per dimension).
type BlockStore struct {
	store Store
}

var _ ChunkStore = (*BlockStore)(nil)

func NewBlockStore(s Store) *BlockStore {
	return &BlockStore{store: s}
}

// CreateGroup marks path as a group of blocks.
func (bs *BlockStore) CreateGroup(ctx context.Context, path string) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	return bs.putJSON(ctx, p.Join(string(MTGroup)).String(), Group{Format: FormatVersion})
}

// SetAttributes stores user metadata next to the group or block at path.
func (bs *BlockStore) SetAttributes(ctx context.Context, path string, attrs Attributes) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	return bs.putJSON(ctx, p.Join(string(attrs.MetaType())).String(), attrs)
}

// DropGroup deletes every key stored under path, the group marker
// included.
func (bs *BlockStore) DropGroup(ctx context.Context, path string) error {
	return bs.dropPrefix(ctx, path)
}

func (bs *BlockStore) CreateBlock(ctx context.Context, name string, spec BlockSpec) (*BlockHandle, error) {
	p, err := NewPath(name)
	if err != nil {
		return nil, err
	}
	if err := spec.Shape.Validate(); err != nil {
		return nil, err
	}
	if spec.Chunks == nil {
		spec.Chunks = spec.Shape
	}
	if !spec.Chunks.Equal(spec.Shape) {
		return nil, fmt.Errorf("%w: block %s: chunks %s must equal shape %s", ErrInvalidExtent, name, spec.Chunks, spec.Shape)
	}
	if !spec.Dtype.IsVariable() && spec.Dtype.ByteSize < 1 {
		return nil, fmt.Errorf("block %s: invalid element type %s", name, spec.Dtype)
	}
	if spec.Fill != nil && len(spec.Fill) != spec.Dtype.ByteSize {
		return nil, fmt.Errorf("%w: block %s: fill value is %d bytes, element is %d", ErrLengthMismatch, name, len(spec.Fill), spec.Dtype.ByteSize)
	}
	if spec.Compressor != nil {
		if err := spec.Compressor.Validate(); err != nil {
			return nil, err
		}
	}

	meta := &BlockMeta{
		Format:     FormatVersion,
		Shape:      append(Extent(nil), spec.Shape...),
		Chunks:     append(Extent(nil), spec.Chunks...),
		Dtype:      spec.Dtype,
		Compressor: spec.Compressor,
		Order:      "C",
	}
	if !isZero(spec.Fill) {
		meta.FillValue = base64.StdEncoding.EncodeToString(spec.Fill)
	}
	if err := bs.putJSON(ctx, p.Join(string(MTBlock)).String(), meta); err != nil {
		return nil, err
	}
	// a recreated block starts out unwritten
	if err := bs.store.Delete(ctx, p.Join(ChunkKey(make([]uint64, len(meta.Chunks)))).String()); err != nil {
		return nil, storeErr(err)
	}

	return &BlockHandle{
		path: p,
		mode: ModeWrite,
		meta: meta,
		fill: spec.Fill,
	}, nil
}

// DropBlock removes the metadata and chunk objects of a block.
func (bs *BlockStore) DropBlock(ctx context.Context, name string) error {
	return bs.dropPrefix(ctx, name)
}

func (bs *BlockStore) dropPrefix(ctx context.Context, path string) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	keys, err := bs.store.List(ctx, p.String()+"/")
	if err != nil {
		return storeErr(err)
	}
	for _, k := range keys {
		if err := bs.store.Delete(ctx, k); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// OpenBlock opens an existing block by reading its metadata.
func (bs *BlockStore) OpenBlock(ctx context.Context, name string, mode PersistenceMode) (*BlockHandle, error) {
	p, err := NewPath(name)
	if err != nil {
		return nil, err
	}

	f, err := bs.store.Get(ctx, p.Join(string(MTBlock)).String())
	if err != nil {
		return nil, storeErr(err)
	}
	defer f.Close()

	meta := &BlockMeta{}
	if err := json.NewDecoder(f).Decode(meta); err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", name, err)
	}
	fill, err := meta.Fill()
	if err != nil {
		return nil, fmt.Errorf("reading %s fill value: %w", name, err)
	}
	return &BlockHandle{path: p, mode: mode, meta: meta, fill: fill}, nil
}

func (bs *BlockStore) WriteBlock(ctx context.Context, h *BlockHandle, sel *Selection, data []byte) error {
	if err := h.usable(true); err != nil {
		return err
	}
	meta := h.meta
	raw := data
	switch {
	case meta.Dtype.IsVariable():
		if sel != nil {
			return fmt.Errorf("block %s: variable-length blocks are written whole", h.path)
		}
	case sel == nil:
		if want := meta.Shape.NumElements() * uint64(meta.Dtype.ByteSize); uint64(len(data)) != want {
			return fmt.Errorf("%w: block %s needs %d bytes, got %d", ErrLengthMismatch, h.path, want, len(data))
		}
	default:
		dense, err := bs.loadDense(ctx, h)
		if err != nil {
			return err
		}
		if err := Scatter(dense, sel, data); err != nil {
			return err
		}
		raw = dense.Data
	}

	if meta.Compressor != nil {
		var err error
		if raw, err = meta.Compressor.Compress(raw); err != nil {
			return fmt.Errorf("compressing %s: %w", h.path, err)
		}
	}
	return storeErr(bs.store.Put(ctx, h.chunkKey(), bytes.NewReader(raw)))
}

func (bs *BlockStore) ReadBlock(ctx context.Context, h *BlockHandle, sel *Selection, out []byte) error {
	if err := h.usable(false); err != nil {
		return err
	}
	if sel == nil {
		raw, err := bs.ReadAll(ctx, h)
		if err != nil {
			return err
		}
		if len(raw) != len(out) {
			return fmt.Errorf("%w: block %s holds %d bytes, buffer is %d", ErrLengthMismatch, h.path, len(raw), len(out))
		}
		copy(out, raw)
		return nil
	}
	if h.meta.Dtype.IsVariable() {
		return fmt.Errorf("block %s: variable-length blocks are read whole", h.path)
	}
	dense, err := bs.loadDense(ctx, h)
	if err != nil {
		return err
	}
	vals, err := Pack(sel, dense)
	if err != nil {
		return err
	}
	if len(vals) != len(out) {
		return fmt.Errorf("%w: %d selected bytes, buffer is %d", ErrLengthMismatch, len(vals), len(out))
	}
	copy(out, vals)
	return nil
}

// ReadAll returns the whole uncompressed content of a block. Unwritten
// fixed-size blocks read as fill.
func (bs *BlockStore) ReadAll(ctx context.Context, h *BlockHandle) ([]byte, error) {
	if err := h.usable(false); err != nil {
		return nil, err
	}
	if !h.meta.Dtype.IsVariable() {
		dense, err := bs.loadDense(ctx, h)
		if err != nil {
			return nil, err
		}
		return dense.Data, nil
	}
	raw, err := bs.readChunk(ctx, h)
	if errors.Is(err, ErrNotfound) {
		return []byte{}, nil
	}
	return raw, err
}

func (bs *BlockStore) BlockStorageBytes(ctx context.Context, h *BlockHandle) (uint64, error) {
	if err := h.usable(false); err != nil {
		return 0, err
	}
	n, err := bs.store.Size(ctx, h.chunkKey())
	if errors.Is(err, ErrNotfound) {
		return 0, nil
	} else if err != nil {
		return 0, storeErr(err)
	}
	return uint64(n), nil
}

func (bs *BlockStore) CloseBlock(h *BlockHandle) error {
	if h.closed {
		return fmt.Errorf("%w: %s", ErrBlockClosed, h.path)
	}
	h.closed = true
	return nil
}

// Consolidate gathers every group and block metadata document of the
// store and stores the collection under the MTMetadata key.
func (bs *BlockStore) Consolidate(ctx context.Context) (*ConsolidatedMetadata, error) {
	keys, err := bs.store.List(ctx, "")
	if err != nil {
		return nil, storeErr(err)
	}
	raw := map[string]json.RawMessage{}
	for _, k := range keys {
		if _, ok := KeyMetaType(k); !ok {
			continue
		}
		f, err := bs.store.Get(ctx, k)
		if err != nil {
			return nil, storeErr(err)
		}
		d, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, storeErr(err)
		}
		raw[k] = d
	}
	doc := consolidatedMetaDecoder{ConsolidatedFormat: FormatVersion, Metadata: raw}
	d, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := bs.store.Put(ctx, string(MTMetadata), bytes.NewReader(d)); err != nil {
		return nil, storeErr(err)
	}
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal(d, cm); err != nil {
		return nil, err
	}
	return cm, nil
}

func (bs *BlockStore) loadDense(ctx context.Context, h *BlockHandle) (*DenseArray, error) {
	raw, err := bs.readChunk(ctx, h)
	if errors.Is(err, ErrNotfound) {
		return NewDenseArray(h.meta.Shape, h.meta.Dtype.ByteSize, h.fill)
	} else if err != nil {
		return nil, err
	}
	dense := &DenseArray{Extent: h.meta.Shape, ElemSize: h.meta.Dtype.ByteSize, Data: raw}
	if err := dense.check(); err != nil {
		return nil, fmt.Errorf("block %s: %w", h.path, err)
	}
	return dense, nil
}

func (bs *BlockStore) readChunk(ctx context.Context, h *BlockHandle) ([]byte, error) {
	f, err := bs.store.Get(ctx, h.chunkKey())
	if err != nil {
		return nil, storeErr(err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, storeErr(err)
	}
	if h.meta.Compressor != nil {
		if raw, err = h.meta.Compressor.Decompress(raw); err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", h.path, err)
		}
	}
	return raw, nil
}

func (bs *BlockStore) putJSON(ctx context.Context, key string, v interface{}) error {
	d, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return storeErr(bs.store.Put(ctx, key, bytes.NewReader(d)))
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
)

type Path []string

// NewPath normalizes a logical path: backward slashes become forward
// slashes, leading and trailing slashes are stripped and runs of slashes
// collapse into one.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, el := range strings.Split(posix, "/") {
		if el == "" {
			continue
		}
		if el == "." || el == ".." {
			return nil, fmt.Errorf("invalid path element %q in %q", el, posix)
		}
		p = append(p, el)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("empty path %q", posix)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	return append(append(out, p...), elems...)
}
