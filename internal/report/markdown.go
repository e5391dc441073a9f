package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
)

// MarkdownWriter writes the document as GitHub-flavored Markdown
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

func (w *MarkdownWriter) Write(doc *Document) (int, error) {
	if err := validate(doc); err != nil {
		return 0, err
	}

	md := markdown.NewMarkdown(w.output)
	w.writeHeader(md, doc)
	w.writeResults(md, doc.Report)
	w.writeAlert(md, doc.Report)
	w.writePlacements(md, doc.Report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, doc *Document) {
	md.H1("Sensor Coverage Report")
	md.PlainText("")

	rows := [][]string{}
	if doc.RunID != "" {
		rows = append(rows, []string{"Run", "`" + doc.RunID + "`"})
	}
	rows = append(rows, []string{"Generated", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST")})
	if exp := doc.Experiment; exp != nil {
		rows = append(rows,
			[]string{"Domain", fmt.Sprintf("%g × %g (%s grid points)", exp.DomainSize, exp.DomainSize, formatArea(domainPoints(exp.DomainSize)))},
			[]string{"Sensors", strconv.Itoa(exp.SensorCount)},
			[]string{"Coverage radius", strconv.FormatFloat(exp.CoverageRadius, 'g', -1, 64)},
			[]string{"Hill climbing restarts", strconv.Itoa(exp.HillClimbing.MaxRestarts)},
			[]string{"Annealing schedule", fmt.Sprintf("%g → %g, α = %g",
				exp.Annealing.InitialTemperature, exp.Annealing.MinTemperature, exp.Annealing.CoolingRate)},
			[]string{"Seed", strconv.FormatInt(exp.Seed, 10)},
		)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeResults(md *markdown.Markdown, report *search.ComparisonReport) {
	md.H2("Results")
	md.PlainText("")

	rows := make([][]string, len(report.Results))
	for i, r := range report.Results {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			r.Algorithm,
			formatArea(r.Area),
			strconv.FormatFloat(r.Seconds(), 'f', 2, 64),
			strconv.Itoa(r.Iterations),
			strconv.Itoa(len(r.Placement)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Algorithm", "Area", "Time (s)", "Iterations", "Sensors"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Covered area by algorithm"),
		piechart.WithShowData(true),
	)
	for _, r := range report.Results {
		chart.LabelAndIntValue(r.Algorithm, uint64(r.Area))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *search.ComparisonReport) {
	degraded := 0
	for _, r := range report.Results {
		degraded += r.Degraded
	}

	switch {
	case report.Cancelled:
		md.Warningf("The run was cancelled. Results hold the best placements found before cancellation.")
	case degraded > 0:
		md.Cautionf("%d random placement(s) ran out of attempts and hold fewer sensors than requested.", degraded)
	default:
		md.Tip(fmt.Sprintf("%s wins with %s covered points, %s above the worst result.",
			report.Winner.Algorithm, formatArea(report.Winner.Area), formatPercent(report.Improvement)))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePlacements(md *markdown.Markdown, report *search.ComparisonReport) {
	md.H2("Placements")
	md.PlainText("")

	for _, r := range report.Results {
		md.H3(r.Algorithm)
		md.PlainText("")
		if len(r.Placement) == 0 {
			md.PlainText("No placement.")
			md.PlainText("")
			continue
		}

		rows := make([][]string, len(r.Placement))
		for i, pos := range r.Placement {
			rows[i] = []string{
				strconv.Itoa(i + 1),
				strconv.FormatFloat(pos.X, 'f', 1, 64),
				strconv.FormatFloat(pos.Y, 'f', 1, 64),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Sensor", "X", "Y"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}
