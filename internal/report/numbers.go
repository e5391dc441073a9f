package report

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// formatArea renders an area with thousands separators, e.g. 14,400
func formatArea(area int) string {
	return printer.Sprintf("%d", area)
}

// formatPercent renders a percentage with one decimal
func formatPercent(p float64) string {
	return printer.Sprintf("%.1f%%", p)
}
