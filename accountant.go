package structchunk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StorageReport holds the stored sizes of one chunk in its dense and its
// structured form, each with and without compression. For variable-length
// runs Dense is the padded representation, Selection the offset/length
// index and Values the blob.
type StorageReport struct {
	RunID   string `json:"run_id"`
	Density int    `json:"density"`
	Policy  Policy `json:"policy"`
	// Points is the number of defined elements in the chunk.
	Points uint64 `json:"points"`

	Dense               uint64 `json:"dense"`
	DenseCompressed     uint64 `json:"dense_compressed"`
	Selection           uint64 `json:"selection"`
	SelectionCompressed uint64 `json:"selection_compressed"`
	Values              uint64 `json:"values"`
	ValuesCompressed    uint64 `json:"values_compressed"`
}

// Structured is the uncompressed size of the structured form.
func (r StorageReport) Structured() uint64 { return r.Selection + r.Values }

// StructuredCompressed is the compressed size of the structured form.
func (r StorageReport) StructuredCompressed() uint64 {
	return r.SelectionCompressed + r.ValuesCompressed
}

// Ratio is dense / (selection + values), uncompressed.
func (r StorageReport) Ratio() (float64, error) {
	return ratio(r.Dense, r.Structured())
}

// CompressedRatio is dense / (selection + values), compressed.
func (r StorageReport) CompressedRatio() (float64, error) {
	return ratio(r.DenseCompressed, r.StructuredCompressed())
}

// SelectionRatio is how much the compressor shrinks the encoded selection.
func (r StorageReport) SelectionRatio() (float64, error) {
	return ratio(r.Selection, r.SelectionCompressed)
}

func ratio(num, den uint64) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDegenerateRatio, num)
	}
	return float64(num) / float64(den), nil
}

// LevelBlocks are the six blocks written for one chunk.
type LevelBlocks struct {
	Dense, DenseCompressed         *BlockHandle
	Selection, SelectionCompressed *BlockHandle
	Values, ValuesCompressed       *BlockHandle
}

// Measure fills the size fields of r from the store's accounting of each
// block.
func Measure(ctx context.Context, cs ChunkStore, blocks LevelBlocks, r *StorageReport) error {
	fields := []struct {
		h   *BlockHandle
		dst *uint64
	}{
		{blocks.Dense, &r.Dense},
		{blocks.DenseCompressed, &r.DenseCompressed},
		{blocks.Selection, &r.Selection},
		{blocks.SelectionCompressed, &r.SelectionCompressed},
		{blocks.Values, &r.Values},
		{blocks.ValuesCompressed, &r.ValuesCompressed},
	}
	for _, f := range fields {
		if f.h == nil {
			*f.dst = 0
			continue
		}
		n, err := cs.BlockStorageBytes(ctx, f.h)
		if err != nil {
			return err
		}
		*f.dst = n
	}
	return nil
}

// Accountant collects the reports of a run. Every density level owns one
// slot, written at most once, so levels may be recorded concurrently.
type Accountant struct {
	lk    sync.Mutex
	runID string
	slots []*StorageReport
}

func NewAccountant(levels int) *Accountant {
	return &Accountant{
		runID: uuid.NewString(),
		slots: make([]*StorageReport, levels),
	}
}

func (a *Accountant) RunID() string { return a.runID }

// Record stores r in slot and stamps it with the run id.
func (a *Accountant) Record(slot int, r StorageReport) error {
	a.lk.Lock()
	defer a.lk.Unlock()
	if slot < 0 || slot >= len(a.slots) {
		return fmt.Errorf("report slot %d out of range [0, %d)", slot, len(a.slots))
	}
	if a.slots[slot] != nil {
		return fmt.Errorf("report slot %d already recorded", slot)
	}
	r.RunID = a.runID
	a.slots[slot] = &r
	return nil
}

// Reports returns the recorded reports in slot order. Unrecorded slots
// are skipped.
func (a *Accountant) Reports() []StorageReport {
	a.lk.Lock()
	defer a.lk.Unlock()
	out := make([]StorageReport, 0, len(a.slots))
	for _, r := range a.slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
