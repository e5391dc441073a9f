package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary    = "Summary"
	sheetPlacements = "Placements"
	sheetHistory    = "History"
)

// XLSXWriter writes the document as an Excel workbook with a summary sheet,
// one row per sensor and the best-area history of every search.
type XLSXWriter struct {
	baseWriter
}

// NewXLSXWriter creates an XLSXWriter that outputs to the given writer
func NewXLSXWriter(output io.Writer) *XLSXWriter {
	return &XLSXWriter{baseWriter: newBaseWriter(output)}
}

func (w *XLSXWriter) Write(doc *Document) (int, error) {
	if err := validate(doc); err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return 0, err
	}
	if err := writeSummarySheet(f, doc, header); err != nil {
		return 0, fmt.Errorf("summary sheet: %w", err)
	}
	if err := writePlacementSheet(f, doc, header); err != nil {
		return 0, fmt.Errorf("placement sheet: %w", err)
	}
	if err := writeHistorySheet(f, doc, header); err != nil {
		return 0, fmt.Errorf("history sheet: %w", err)
	}

	n, err := f.WriteTo(w.output)
	return int(n), err
}

func writeSummarySheet(f *excelize.File, doc *Document, header int) error {
	sheet := sheetSummary
	row := 1

	if err := f.SetCellValue(sheet, cellAddr(1, row), "Sensor Coverage Report"); err != nil {
		return err
	}
	row++
	if doc.RunID != "" {
		_ = f.SetCellValue(sheet, cellAddr(1, row), "Run")
		_ = f.SetCellValue(sheet, cellAddr(2, row), doc.RunID)
		row++
	}
	if exp := doc.Experiment; exp != nil {
		params := [][2]any{
			{"Domain size", exp.DomainSize},
			{"Sensors", exp.SensorCount},
			{"Coverage radius", exp.CoverageRadius},
			{"Max restarts", exp.HillClimbing.MaxRestarts},
			{"Initial temperature", exp.Annealing.InitialTemperature},
			{"Cooling rate", exp.Annealing.CoolingRate},
			{"Min temperature", exp.Annealing.MinTemperature},
			{"Seed", exp.Seed},
		}
		for _, p := range params {
			_ = f.SetCellValue(sheet, cellAddr(1, row), p[0])
			_ = f.SetCellValue(sheet, cellAddr(2, row), p[1])
			row++
		}
	}
	row++

	columns := []string{"Algorithm", "Area", "Time (s)", "Iterations", "Steps", "Rejected", "Degraded", "Cancelled"}
	if err := f.SetSheetRow(sheet, cellAddr(1, row), &columns); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, cellAddr(1, row), cellAddr(len(columns), row), header); err != nil {
		return err
	}
	row++

	for _, r := range doc.Report.Results {
		values := []any{r.Algorithm, r.Area, r.Seconds(), r.Iterations, r.Steps, r.Rejected, r.Degraded, r.Cancelled}
		if err := f.SetSheetRow(sheet, cellAddr(1, row), &values); err != nil {
			return err
		}
		row++
	}
	row++

	_ = f.SetCellValue(sheet, cellAddr(1, row), "Winner")
	_ = f.SetCellValue(sheet, cellAddr(2, row), doc.Report.Winner.Algorithm)
	row++
	_ = f.SetCellValue(sheet, cellAddr(1, row), "Relative improvement (%)")
	_ = f.SetCellValue(sheet, cellAddr(2, row), doc.Report.Improvement)

	return f.SetColWidth(sheet, "A", "A", 26)
}

func writePlacementSheet(f *excelize.File, doc *Document, header int) error {
	sheet := sheetPlacements
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	columns := []string{"Algorithm", "Sensor", "X", "Y"}
	if err := f.SetSheetRow(sheet, "A1", &columns); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "D1", header); err != nil {
		return err
	}

	row := 2
	for _, r := range doc.Report.Results {
		for i, pos := range r.Placement {
			values := []any{r.Algorithm, i + 1, pos.X, pos.Y}
			if err := f.SetSheetRow(sheet, cellAddr(1, row), &values); err != nil {
				return err
			}
			row++
		}
	}
	return f.SetColWidth(sheet, "A", "A", 22)
}

func writeHistorySheet(f *excelize.File, doc *Document, header int) error {
	sheet := sheetHistory
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	if err := f.SetCellValue(sheet, "A1", "Step"); err != nil {
		return err
	}
	longest := 0
	for col, r := range doc.Report.Results {
		if err := f.SetCellValue(sheet, cellAddr(col+2, 1), r.Algorithm); err != nil {
			return err
		}
		for i, area := range r.History {
			if err := f.SetCellValue(sheet, cellAddr(col+2, i+2), area); err != nil {
				return err
			}
		}
		longest = max(longest, len(r.History))
	}
	for i := 0; i < longest; i++ {
		if err := f.SetCellValue(sheet, cellAddr(1, i+2), i+1); err != nil {
			return err
		}
	}
	return f.SetCellStyle(sheet, "A1", cellAddr(len(doc.Report.Results)+1, 1), header)
}

func cellAddr(col, row int) string {
	addr, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "A1"
	}
	return addr
}
