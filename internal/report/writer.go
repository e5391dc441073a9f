package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
)

// Format names an output format
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
)

// ErrUnknownFormat is returned for an unsupported format name
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts a format name or a common file extension
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Document is everything a report shows about one run
type Document struct {
	RunID       string                   `json:"run_id,omitempty"`
	Experiment  *config.Experiment       `json:"experiment,omitempty"`
	Report      *search.ComparisonReport `json:"report"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// NewDocument wraps a comparison report
func NewDocument(runID string, exp *config.Experiment, report *search.ComparisonReport) *Document {
	return &Document{
		RunID:       runID,
		Experiment:  exp,
		Report:      report,
		GeneratedAt: time.Now(),
	}
}

// Writer writes a Document in one format.
type Writer interface {
	// Write returns the number of bytes written
	Write(doc *Document) (int, error)
}

// NewWriter returns the writer for format
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatText:
		return NewTextWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatXLSX:
		return NewXLSXWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ContentType returns the MIME type of a format
func ContentType(format Format) string {
	switch format {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

var errNoReport = errors.New("document has no comparison report")

func validate(doc *Document) error {
	if doc == nil || doc.Report == nil {
		return errNoReport
	}
	return nil
}

// baseWriter holds the output destination shared by all writers
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
