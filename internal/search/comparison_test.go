package search

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareWinnerAndImprovement(t *testing.T) {
	hc := &Result{Algorithm: AlgorithmHillClimbing, Area: 9000, Iterations: 20, Elapsed: 1500 * time.Millisecond}
	sa := &Result{Algorithm: AlgorithmSimulatedAnnealing, Area: 9500, Iterations: 180, Elapsed: 250 * time.Millisecond}

	report, err := Compare(hc, sa)
	require.NoError(t, err)

	assert.Equal(t, 9500, report.Winner.Area)
	assert.Equal(t, AlgorithmSimulatedAnnealing, report.Winner.Algorithm)
	assert.InDelta(t, 5.56, report.Improvement, 0.01)
	assert.Equal(t, hc, report.Worst())
	assert.Equal(t, []*Result{sa, hc}, report.Results)
	assert.False(t, report.Cancelled)

	got, ok := report.Lookup(AlgorithmHillClimbing)
	require.True(t, ok)
	assert.Equal(t, hc, got)
	_, ok = report.Lookup("Tabu Search")
	assert.False(t, ok)
}

func TestCompareTiesKeepInputOrder(t *testing.T) {
	first := &Result{Algorithm: "first", Area: 7000}
	second := &Result{Algorithm: "second", Area: 7000}

	report, err := Compare(first, second)
	require.NoError(t, err)
	assert.Equal(t, first, report.Winner)
	assert.Zero(t, report.Improvement)
}

func TestCompareZeroWorstArea(t *testing.T) {
	report, err := Compare(&Result{Algorithm: "a", Area: 500}, &Result{Algorithm: "b", Area: 0, Cancelled: true})
	require.NoError(t, err)
	assert.Zero(t, report.Improvement)
	assert.True(t, report.Cancelled)
}

func TestCompareNoResults(t *testing.T) {
	_, err := Compare()
	assert.True(t, errors.Is(err, ErrNoResults))

	_, err = Compare(nil, nil)
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestFormatComparison(t *testing.T) {
	report, err := Compare(
		&Result{Algorithm: AlgorithmHillClimbing, Area: 9000, Iterations: 20, Elapsed: 1500 * time.Millisecond},
		&Result{Algorithm: AlgorithmSimulatedAnnealing, Area: 9500, Iterations: 180, Elapsed: 250 * time.Millisecond},
	)
	require.NoError(t, err)

	table := FormatComparison(report)
	lines := strings.Split(table, "\n")

	assert.Contains(t, table, "Algorithm            Area         Time (s)     Iterations")
	assert.Contains(t, table, "Simulated Annealing  9500.0       0.25         180")
	assert.Contains(t, table, "Hill Climbing        9000.0       1.50         20")
	assert.Contains(t, table, "Winner: Simulated Annealing")
	assert.Contains(t, table, "Relative improvement: 5.6%")
	assert.NotContains(t, table, "cancelled")

	saRow, hcRow := -1, -1
	for i, l := range lines {
		if strings.HasPrefix(l, AlgorithmSimulatedAnnealing) {
			saRow = i
		}
		if strings.HasPrefix(l, AlgorithmHillClimbing) {
			hcRow = i
		}
	}
	assert.Less(t, saRow, hcRow, "rows are ranked by area")
}

func TestRelativeImprovement(t *testing.T) {
	assert.InDelta(t, 5.555, RelativeImprovement(9500, 9000), 0.001)
	assert.Zero(t, RelativeImprovement(9500, 0))
	assert.Zero(t, RelativeImprovement(100, 100))
}
