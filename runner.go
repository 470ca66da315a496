package structchunk

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Block names written for every density level, mirroring the dataset
// names of the original benchmark files.
const (
	BlockSparse              = "sparse"
	BlockSparseCompressed    = "sparse_comp"
	BlockSelection           = "selection"
	BlockSelectionCompressed = "selection_comp"
	BlockData                = "data"
	BlockDataCompressed      = "data_comp"

	BlockVLIndex            = "offset_length"
	BlockVLIndexCompressed  = "offset_length_comp"
	BlockVLData             = "vl_data"
	BlockVLDataCompressed   = "vl_data_comp"
	BlockVLPadded           = "vl_padded"
	BlockVLPaddedCompressed = "vl_padded_comp"

	// VLGroup holds the blocks of a variable-length run.
	VLGroup = "vl"
)

// verifyAllLimit is the largest selection verified point by point; larger
// ones are checked at verifySamples random points.
const (
	verifyAllLimit = 10000
	verifySamples  = 10
)

// LevelGroup is the group holding the blocks of one density level.
func LevelGroup(density int) string { return fmt.Sprintf("percent_%d", density) }

// Runner writes every density level of a sparse benchmark run to a block
// store and records its storage report.
type Runner struct {
	cfg    Config
	extent Extent
	policy Policy
	format SelectionFormat
	bs     *BlockStore
	log    *logrus.Entry
}

func NewRunner(cfg Config, s Store) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	extent, err := cfg.Extent()
	if err != nil {
		return nil, err
	}
	policy, _ := ParsePolicy(cfg.Policy)
	format, _ := ParseSelectionFormat(cfg.SelectionFormat)

	return &Runner{
		cfg:    cfg,
		extent: extent,
		policy: policy,
		format: format,
		bs:     NewBlockStore(s),
		log: logrus.WithFields(logrus.Fields{
			"component": "runner",
			"policy":    policy.String(),
		}),
	}, nil
}

func (r *Runner) BlockStore() *BlockStore { return r.bs }

// Run processes density levels 1 to MaxPercent, up to Workers at a time,
// and returns one report per level in density order. The first failing
// level aborts the run.
func (r *Runner) Run(ctx context.Context) ([]StorageReport, error) {
	acct := NewAccountant(r.cfg.MaxPercent)
	r.log.WithFields(logrus.Fields{
		"run":    acct.RunID(),
		"extent": r.extent.String(),
		"levels": r.cfg.MaxPercent,
	}).Info("starting sparse run")

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Workers)
	for density := 1; density <= r.cfg.MaxPercent; density++ {
		eg.Go(func() error {
			rep, err := r.runLevel(ctx, acct.RunID(), density)
			if err != nil {
				return err
			}
			return acct.Record(density-1, rep)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	r.log.WithField("run", acct.RunID()).Debug("done")
	return acct.Reports(), nil
}

func (r *Runner) runLevel(ctx context.Context, runID string, density int) (rep StorageReport, err error) {
	log := r.log.WithField("density", density)
	group := LevelGroup(density)
	op := "generate"
	defer func() {
		if err == nil {
			return
		}
		if derr := r.bs.DropGroup(context.Background(), group); derr != nil {
			log.WithError(derr).Warn("removing partial level")
		}
		err = &ChunkError{Density: density, Policy: r.policy, Op: op, Err: err}
	}()

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	rng := NewRand(r.cfg.Seed, r.policy, density)
	sel, err := Generate(r.extent, density, r.policy, rng)
	if err != nil {
		return rep, err
	}
	values := r.values(sel.Len(), rng)
	log.WithField("points", sel.Len()).Debug("generated selection")

	op = "create group"
	if err := r.bs.CreateGroup(ctx, group); err != nil {
		return rep, err
	}
	attrs := Attributes{
		"run_id":  runID,
		"density": density,
		"policy":  r.policy.String(),
		"points":  sel.Len(),
	}
	if err := r.bs.SetAttributes(ctx, group, attrs); err != nil {
		return rep, err
	}

	var blocks LevelBlocks
	defer closeAll(r.bs, &blocks)

	op = "write dense"
	dense := BlockSpec{Shape: r.extent, Dtype: Uint8}
	if blocks.Dense, err = r.write(ctx, group, BlockSparse, dense, sel, values); err != nil {
		return rep, err
	}
	dense.Compressor = &r.cfg.Compressor
	if blocks.DenseCompressed, err = r.write(ctx, group, BlockSparseCompressed, dense, sel, values); err != nil {
		return rep, err
	}

	op = "encode selection"
	enc, err := EncodeSelection(sel, r.format)
	if err != nil {
		return rep, err
	}
	op = "write selection"
	if blocks.Selection, blocks.SelectionCompressed, err = r.writePair(ctx, group, BlockSelection, BlockSelectionCompressed, enc); err != nil {
		return rep, err
	}

	// an empty selection has no values to store
	if len(values) > 0 {
		op = "write values"
		if blocks.Values, blocks.ValuesCompressed, err = r.writePair(ctx, group, BlockData, BlockDataCompressed, values); err != nil {
			return rep, err
		}
	}

	op = "measure"
	rep = StorageReport{Density: density, Policy: r.policy, Points: sel.Len()}
	if err := Measure(ctx, r.bs, blocks, &rep); err != nil {
		return rep, err
	}

	if r.cfg.Verify {
		op = "verify"
		if err := r.verify(ctx, group, sel, rng); err != nil {
			return rep, err
		}
	}

	log.WithFields(logrus.Fields{
		"dense":      rep.Dense,
		"structured": rep.Structured(),
	}).Debugf("closed group %s", group)
	return rep, nil
}

func (r *Runner) values(n uint64, rng *rand.Rand) []byte {
	v := make([]byte, n)
	for i := range v {
		if r.cfg.DataRandom == 1 {
			v[i] = byte(rng.IntN(255) + 1)
		} else {
			v[i] = byte((i + 1) % 255)
		}
	}
	return v
}

func (r *Runner) write(ctx context.Context, group, name string, spec BlockSpec, sel *Selection, data []byte) (*BlockHandle, error) {
	h, err := r.bs.CreateBlock(ctx, group+"/"+name, spec)
	if err != nil {
		return nil, err
	}
	if err := r.bs.WriteBlock(ctx, h, sel, data); err != nil {
		r.bs.CloseBlock(h)
		return nil, err
	}
	return h, nil
}

// writePair stores data as a one dimensional byte block, once plain and
// once compressed.
func (r *Runner) writePair(ctx context.Context, group, plain, compressed string, data []byte) (*BlockHandle, *BlockHandle, error) {
	spec := BlockSpec{Shape: Extent{uint64(len(data))}, Dtype: Uint8}
	hp, err := r.write(ctx, group, plain, spec, nil, data)
	if err != nil {
		return nil, nil, err
	}
	spec.Compressor = &r.cfg.Compressor
	hc, err := r.write(ctx, group, compressed, spec, nil, data)
	if err != nil {
		r.bs.CloseBlock(hp)
		return nil, nil, err
	}
	return hp, hc, nil
}

// verify reads the structured form back, rebuilds the chunk over the fill
// value and compares it to the dense blocks.
func (r *Runner) verify(ctx context.Context, group string, want *Selection, rng *rand.Rand) error {
	enc, err := r.readBlock(ctx, group+"/"+BlockSelectionCompressed)
	if err != nil {
		return err
	}
	sel, err := DecodeSelection(enc, r.extent)
	if err != nil {
		return err
	}
	if !sel.Equal(want) {
		return errors.Errorf("decoded selection of %d points differs from the generated one of %d", sel.Len(), want.Len())
	}

	var values []byte
	if !sel.IsEmpty() {
		if values, err = r.readBlock(ctx, group+"/"+BlockDataCompressed); err != nil {
			return err
		}
	}

	if sel.Len() <= verifyAllLimit {
		got, err := Unpack(values, sel, r.extent, 1, nil)
		if err != nil {
			return err
		}
		for _, name := range []string{BlockSparse, BlockSparseCompressed} {
			dense, err := r.readBlock(ctx, group+"/"+name)
			if err != nil {
				return err
			}
			if err := r.compare(name, got, dense); err != nil {
				return err
			}
		}
		return nil
	}

	// draw the sample points, then gather them from each dense block
	sample, err := NewSelection(r.extent)
	if err != nil {
		return err
	}
	expect := make(map[uint64]byte, verifySamples)
	for i := 0; i < verifySamples; i++ {
		k := rng.Uint64N(sel.Len())
		idx, err := sel.Nth(k)
		if err != nil {
			return err
		}
		if err := sample.Add(r.extent.Coordinate(idx, nil)); err != nil {
			return err
		}
		expect[idx] = values[k]
	}
	for _, name := range []string{BlockSparse, BlockSparseCompressed} {
		got, err := r.readSelected(ctx, group+"/"+name, sample)
		if err != nil {
			return err
		}
		i := 0
		for idx := range sample.Indices() {
			if got[i] != expect[idx] {
				return errors.Errorf("block %s: element %v is %d, structured value is %d",
					name, r.extent.Coordinate(idx, nil), got[i], expect[idx])
			}
			i++
		}
	}
	return nil
}

// compare reports the first element where a dense block differs from the
// chunk rebuilt from its structured form.
func (r *Runner) compare(name string, rebuilt *DenseArray, dense []byte) error {
	if bytes.Equal(rebuilt.Data, dense) {
		return nil
	}
	if len(dense) != len(rebuilt.Data) {
		return errors.Errorf("block %s holds %d bytes, structured form rebuilds %d", name, len(dense), len(rebuilt.Data))
	}
	off := uint64(0)
	for dense[off] == rebuilt.Data[off] {
		off++
	}
	c := r.extent.Coordinate(off, nil)
	want, err := rebuilt.At(c)
	if err != nil {
		return err
	}
	return errors.Errorf("block %s: element %v is %d, structured value is %d", name, c, dense[off], want[0])
}

func (r *Runner) readSelected(ctx context.Context, name string, sel *Selection) ([]byte, error) {
	h, err := r.bs.OpenBlock(ctx, name, ModeRead)
	if err != nil {
		return nil, err
	}
	defer r.bs.CloseBlock(h)
	out := make([]byte, sel.Len())
	if err := r.bs.ReadBlock(ctx, h, sel, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) readBlock(ctx context.Context, name string) ([]byte, error) {
	h, err := r.bs.OpenBlock(ctx, name, ModeRead)
	if err != nil {
		return nil, err
	}
	defer r.bs.CloseBlock(h)
	return r.bs.ReadAll(ctx, h)
}

func closeAll(cs ChunkStore, b *LevelBlocks) {
	for _, h := range []*BlockHandle{
		b.Dense, b.DenseCompressed,
		b.Selection, b.SelectionCompressed,
		b.Values, b.ValuesCompressed,
	} {
		if h != nil && !h.closed {
			cs.CloseBlock(h)
		}
	}
}

// RunVL writes the padded and the structured form of a set of
// variable-length elements and reports their sizes.
func RunVL(ctx context.Context, cfg VLConfig, s Store) (rep StorageReport, err error) {
	if err := cfg.Validate(); err != nil {
		return rep, errors.Wrap(err, "invalid config")
	}
	log := logrus.WithFields(logrus.Fields{
		"component": "runner",
		"elements":  cfg.NElements,
	})
	bs := NewBlockStore(s)
	op := "generate"
	defer func() {
		if err == nil {
			return
		}
		if derr := bs.DropGroup(context.Background(), VLGroup); derr != nil {
			log.WithError(derr).Warn("removing partial run")
		}
		err = errors.Wrap(err, op)
	}()

	rng := rand.New(rand.NewPCG(cfg.Seed, ^cfg.Seed))
	elements := make([][]byte, cfg.NElements)
	width := 0
	for i := range elements {
		el := make([]byte, rng.IntN(cfg.MaxLength)+1)
		for j := range el {
			if cfg.DataRandom == 1 {
				el[j] = byte(rng.IntN(127))
			} else {
				el[j] = byte(j)
			}
		}
		elements[i] = el
		width = max(width, len(el))
	}
	index, blob := PackVL(elements)
	padded, err := PadVL(elements, width)
	if err != nil {
		return rep, err
	}

	op = "create group"
	if err := bs.CreateGroup(ctx, VLGroup); err != nil {
		return rep, err
	}

	var blocks LevelBlocks
	defer closeAll(bs, &blocks)
	n := uint64(cfg.NElements)
	writes := []struct {
		name string
		spec BlockSpec
		data []byte
		dst  **BlockHandle
	}{
		{BlockVLPadded, BlockSpec{Shape: Extent{n}, Dtype: FixedBytes(width)}, padded, &blocks.Dense},
		{BlockVLPaddedCompressed, BlockSpec{Shape: Extent{n}, Dtype: FixedBytes(width), Compressor: &cfg.Compressor}, padded, &blocks.DenseCompressed},
		{BlockVLIndex, BlockSpec{Shape: Extent{2 * n}, Dtype: Uint64LE}, EncodeVLIndex(index), &blocks.Selection},
		{BlockVLIndexCompressed, BlockSpec{Shape: Extent{2 * n}, Dtype: Uint64LE, Compressor: &cfg.Compressor}, EncodeVLIndex(index), &blocks.SelectionCompressed},
		{BlockVLData, BlockSpec{Shape: Extent{n}, Dtype: Variable}, blob, &blocks.Values},
		{BlockVLDataCompressed, BlockSpec{Shape: Extent{n}, Dtype: Variable, Compressor: &cfg.Compressor}, blob, &blocks.ValuesCompressed},
	}
	for _, w := range writes {
		op = "write " + w.name
		h, err := bs.CreateBlock(ctx, VLGroup+"/"+w.name, w.spec)
		if err != nil {
			return rep, err
		}
		*w.dst = h
		if err := bs.WriteBlock(ctx, h, nil, w.data); err != nil {
			return rep, err
		}
	}

	op = "measure"
	rep = StorageReport{Points: n}
	if err := Measure(ctx, bs, blocks, &rep); err != nil {
		return rep, err
	}
	rep.RunID = uuid.NewString()

	if cfg.Verify {
		op = "verify"
		if err := verifyVL(ctx, bs, elements); err != nil {
			return rep, err
		}
	}
	log.WithFields(logrus.Fields{
		"padded":     rep.Dense,
		"structured": rep.Structured(),
	}).Debug("done")
	return rep, nil
}

func verifyVL(ctx context.Context, bs *BlockStore, want [][]byte) error {
	read := func(name string) ([]byte, error) {
		h, err := bs.OpenBlock(ctx, VLGroup+"/"+name, ModeRead)
		if err != nil {
			return nil, err
		}
		defer bs.CloseBlock(h)
		return bs.ReadAll(ctx, h)
	}
	ib, err := read(BlockVLIndexCompressed)
	if err != nil {
		return err
	}
	blob, err := read(BlockVLDataCompressed)
	if err != nil {
		return err
	}
	index, err := DecodeVLIndex(ib)
	if err != nil {
		return err
	}
	got, err := UnpackVL(index, blob)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return errors.Errorf("read back %d elements, wrote %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			return errors.Errorf("element %d differs after read back", i)
		}
	}
	return nil
}
