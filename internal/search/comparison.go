package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoResults is returned when a comparison is requested without results
var ErrNoResults = errors.New("no search results to compare")

// ComparisonReport ranks search results by area
type ComparisonReport struct {
	Results     []*Result `json:"results"` // area descending
	Winner      *Result   `json:"winner"`
	Improvement float64   `json:"improvement_percent"`
	Cancelled   bool      `json:"cancelled,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Compare ranks results by area descending. Equal areas keep their input order,
// so the winner is the first maximal result. Improvement is the relative gain
// of the winner over the worst result in percent, or 0 when the worst area is 0.
func Compare(results ...*Result) (*ComparisonReport, error) {
	ranked := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 {
		return nil, ErrNoResults
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Area > ranked[j].Area
	})

	report := &ComparisonReport{
		Results:     ranked,
		Winner:      ranked[0],
		GeneratedAt: time.Now(),
	}
	for _, r := range ranked {
		if r.Cancelled {
			report.Cancelled = true
		}
	}
	report.Improvement = RelativeImprovement(report.Winner.Area, report.Worst().Area)
	return report, nil
}

// RelativeImprovement returns (best-worst)/worst in percent, 0 when worst is 0
func RelativeImprovement(best, worst int) float64 {
	if worst == 0 {
		return 0
	}
	return float64(best-worst) / float64(worst) * 100
}

// Worst returns the result with the smallest area
func (r *ComparisonReport) Worst() *Result {
	if len(r.Results) == 0 {
		return nil
	}
	return r.Results[len(r.Results)-1]
}

// Lookup returns the result of the named algorithm
func (r *ComparisonReport) Lookup(algorithm string) (*Result, bool) {
	for _, res := range r.Results {
		if res.Algorithm == algorithm {
			return res, true
		}
	}
	return nil, false
}

// FormatComparison renders the comparison table written at the end of a run
func FormatComparison(r *ComparisonReport) string {
	heavy := strings.Repeat("═", 60)
	var b strings.Builder

	b.WriteString(heavy + "\n")
	b.WriteString("FINAL COMPARISON\n")
	b.WriteString(heavy + "\n")
	fmt.Fprintf(&b, "%-20s %-12s %-12s %-12s\n", "Algorithm", "Area", "Time (s)", "Iterations")
	b.WriteString(strings.Repeat("─", 60) + "\n")
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%-20s %-12.1f %-12.2f %-12d\n", res.Algorithm, float64(res.Area), res.Seconds(), res.Iterations)
	}
	b.WriteString(heavy + "\n")
	if r.Winner != nil {
		fmt.Fprintf(&b, "Winner: %s\n", r.Winner.Algorithm)
		fmt.Fprintf(&b, "Maximum area: %.1f\n", float64(r.Winner.Area))
		fmt.Fprintf(&b, "Relative improvement: %.1f%%\n", r.Improvement)
	}
	if r.Cancelled {
		b.WriteString("Run cancelled before completion\n")
	}
	b.WriteString(heavy)
	return b.String()
}
