package structchunk

import (
	"fmt"
	"io"
)

// WriteSparseReport prints the three comparison tables of a sparse run:
// selection compression, uncompressed storage and compressed storage.
func WriteSparseReport(w io.Writer, reports []StorageReport) error {
	pw := &printer{w: w}

	pw.printf("\nPrinting percentage, encoded selection size (ES), compressed encoded selection size (CES), and storage ratio (SR)\n\n")
	pw.printf("%10s %10s %10s %10s\n\n", "%", "ES", "CES", "SR")
	for _, r := range reports {
		pw.row(r.Density, r.Selection, r.SelectionCompressed, r.SelectionRatio)
	}

	pw.printf("\nPrinting percentage, sparse storage size (SPS), structured storage size (STS), and storage ratio (SR)\n\n")
	pw.printf("%10s %10s %10s %10s\n\n", "%", "SPS", "STS", "SR")
	for _, r := range reports {
		pw.row(r.Density, r.Dense, r.Structured(), r.Ratio)
	}

	pw.printf("\nPrinting percentage, compressed sparse storage size (CSPS), compressed structured storage size (CSTS), and storage ratio (SR)\n\n")
	pw.printf("%10s %10s %10s %10s\n\n", "%", "CSPS", "CSTS", "SR")
	for _, r := range reports {
		pw.row(r.Density, r.DenseCompressed, r.StructuredCompressed(), r.CompressedRatio)
	}
	return pw.err
}

// WriteVLReport prints the padded against structured sizes of a
// variable-length run.
func WriteVLReport(w io.Writer, r StorageReport) error {
	pw := &printer{w: w}
	pw.printf("\nPrinting elements, padded storage size (PS), offset/length index size (IS), blob size (BS), and storage ratio (SR)\n\n")
	pw.printf("%10s %10s %10s %10s %10s\n\n", "", "PS", "IS", "BS", "SR")
	pw.vlRow("plain", r.Dense, r.Selection, r.Values, r.Ratio)
	pw.vlRow("compressed", r.DenseCompressed, r.SelectionCompressed, r.ValuesCompressed, r.CompressedRatio)
	return pw.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) row(density int, a, b uint64, sr func() (float64, error)) {
	p.printf("%10d %10d %10d %10s\n", density, a, b, formatRatio(sr))
}

func (p *printer) vlRow(label string, padded, index, blob uint64, sr func() (float64, error)) {
	p.printf("%10s %10d %10d %10d %10s\n", label, padded, index, blob, formatRatio(sr))
}

// degenerate ratios print as "-" rather than inf or NaN
func formatRatio(sr func() (float64, error)) string {
	v, err := sr()
	if err != nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}
