// Package report renders the comparison of a finished experiment run.
//
// The same Document can be written as the plain comparison table printed at
// the end of a run, as Markdown for sharing, as JSON for tooling, or as an
// XLSX workbook with one sheet per concern.
package report
