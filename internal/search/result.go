package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
)

// Algorithm names as they appear in results and reports
const (
	AlgorithmHillClimbing       = "Hill Climbing"
	AlgorithmSimulatedAnnealing = "Simulated Annealing"
)

var tracer = otel.Tracer("github.com/GoSim-25-26J-441/coverage-core/internal/search")

// Searcher is one placement search algorithm
type Searcher interface {
	Name() string
	Search(ctx context.Context) (*Result, error)
}

// Result is the outcome of one search
type Result struct {
	Algorithm  string             `json:"algorithm"`
	Area       int                `json:"area"`
	Overlaps   int                `json:"overlaps"`
	Elapsed    time.Duration      `json:"elapsed"`
	Iterations int                `json:"iterations"` // restarts for hill climbing
	Placement  coverage.Placement `json:"placement"`

	// Steps counts climb moves (hill climbing) or accepted moves (annealing)
	Steps int `json:"steps"`
	// Rejected counts annealing moves discarded because of an overlap
	Rejected         int     `json:"rejected,omitempty"`
	FinalTemperature float64 `json:"final_temperature,omitempty"`
	// History holds the best area after each restart, or after each cooling step
	History   []int `json:"history,omitempty"`
	Degraded  int   `json:"degraded_placements,omitempty"`
	Cancelled bool  `json:"cancelled,omitempty"`
}

// Seconds returns the elapsed wall time in seconds
func (r *Result) Seconds() float64 {
	return r.Elapsed.Seconds()
}
