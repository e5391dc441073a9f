package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
)

// TextWriter writes the comparison table printed at the end of a run
type TextWriter struct {
	baseWriter
}

// NewTextWriter creates a TextWriter that outputs to the given writer
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{baseWriter: newBaseWriter(output)}
}

func (w *TextWriter) Write(doc *Document) (int, error) {
	if err := validate(doc); err != nil {
		return 0, err
	}

	var b strings.Builder
	if doc.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", doc.RunID)
	}
	if exp := doc.Experiment; exp != nil {
		fmt.Fprintf(&b, "Domain: %gx%g (%s points), sensors: %d, radius: %g\n",
			exp.DomainSize, exp.DomainSize, formatArea(domainPoints(exp.DomainSize)),
			exp.SensorCount, exp.CoverageRadius)
	}
	b.WriteString(search.FormatComparison(doc.Report))
	b.WriteString("\n")

	return io.WriteString(w.output, b.String())
}

// domainPoints is the number of unit grid points sampled in a domain of side size
func domainPoints(size float64) int {
	side := int(size) + 1
	return side * side
}
