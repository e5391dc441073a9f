package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// DefaultMaxRestarts is the number of hill-climbing restarts of the reference run
const DefaultMaxRestarts = 20

// HillClimber implements random-restart steepest ascent. Each restart climbs
// from a fresh random placement to the first maximal neighbor until no neighbor
// is strictly better. Plateaus end the climb.
type HillClimber struct {
	model       *coverage.Model
	rng         *utils.RandSource
	maxRestarts int
	stepDelay   time.Duration
	observer    Observer

	mu       sync.RWMutex
	bestArea int
	restart  int
}

// NewHillClimber creates a hill climber. A non-positive maxRestarts selects
// DefaultMaxRestarts.
func NewHillClimber(model *coverage.Model, rng *utils.RandSource, maxRestarts int) *HillClimber {
	if maxRestarts <= 0 {
		maxRestarts = DefaultMaxRestarts
	}
	if rng == nil {
		rng = utils.NewRandSource(0)
	}
	return &HillClimber{
		model:       model,
		rng:         rng,
		maxRestarts: maxRestarts,
		observer:    NopObserver{},
	}
}

// WithObserver sets the observer receiving progress and log lines
func (h *HillClimber) WithObserver(o Observer) *HillClimber {
	h.observer = o
	return h
}

// WithStepDelay sets the base pacing delay requested after every climb move
func (h *HillClimber) WithStepDelay(d time.Duration) *HillClimber {
	h.stepDelay = d
	return h
}

func (h *HillClimber) Name() string {
	return AlgorithmHillClimbing
}

// Search runs all restarts and returns the best placement found. When ctx is
// cancelled the best placement so far is returned with Cancelled set.
func (h *HillClimber) Search(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "search.hill_climbing",
		trace.WithAttributes(attribute.Int("coverage.max_restarts", h.maxRestarts)))
	defer span.End()

	obs := guard(h.observer)
	start := time.Now()
	h.setProgress(0, 0)

	obs.Log(strings.Repeat("=", 50))
	obs.Log("starting hill climbing")

	result := &Result{
		Algorithm: AlgorithmHillClimbing,
		History:   make([]int, 0, h.maxRestarts),
	}
	best := coverage.Placement(nil)
	bestArea, bestOverlaps := 0, 0

	for restart := 1; restart <= h.maxRestarts; restart++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		obs.Log(fmt.Sprintf("restart %d/%d", restart, h.maxRestarts))

		current, err := h.model.RandomPlacement(h.rng)
		if err != nil {
			if !errors.Is(err, coverage.ErrPlacementDegraded) {
				return nil, fmt.Errorf("restart %d: %w", restart, err)
			}
			result.Degraded++
			logger.Warn("degraded placement", "algorithm", AlgorithmHillClimbing, "restart", restart, "error", err)
			obs.Log(fmt.Sprintf("restart %d: %v", restart, err))
		}

		area, overlaps, err := h.model.CoveredArea(current)
		if err != nil {
			return nil, fmt.Errorf("restart %d: %w", restart, err)
		}
		h.model.Commit(current, overlaps)

		cancelled := false
		for step := 0; ; step++ {
			obs.OnProgress(Progress{
				Algorithm:   AlgorithmHillClimbing,
				Iteration:   restart,
				Step:        step,
				CurrentArea: area,
				BestArea:    bestArea,
				Overlaps:    overlaps,
				Placement:   current.Clone(),
			})
			if ctx.Err() != nil {
				cancelled = true
				break
			}

			next, nextArea, nextOverlaps, err := h.bestNeighbor(current)
			if err != nil {
				return nil, fmt.Errorf("restart %d: %w", restart, err)
			}
			if next == nil || nextArea <= area {
				break
			}

			current, area, overlaps = next, nextArea, nextOverlaps
			result.Steps++
			h.model.Commit(current, overlaps)
			obs.Sleep(ctx, h.stepDelay)
		}

		if best == nil || area > bestArea {
			best, bestArea, bestOverlaps = current, area, overlaps
		}
		result.History = append(result.History, bestArea)
		h.setProgress(restart, bestArea)

		if cancelled {
			result.Cancelled = true
			break
		}
		result.Iterations++
	}

	if best != nil {
		h.model.Commit(best, bestOverlaps)
	}
	result.Area = bestArea
	result.Overlaps = bestOverlaps
	result.Placement = best.Clone()
	result.Elapsed = time.Since(start)

	obs.Log(fmt.Sprintf("hill climbing finished: area %d", bestArea))
	span.SetAttributes(
		attribute.Int("coverage.area", result.Area),
		attribute.Int("coverage.restarts", result.Iterations),
		attribute.Bool("coverage.cancelled", result.Cancelled),
	)
	return result, nil
}

// bestNeighbor evaluates the whole neighborhood of p and returns the first
// neighbor with maximal area, or nil when the neighborhood is empty.
func (h *HillClimber) bestNeighbor(p coverage.Placement) (coverage.Placement, int, int, error) {
	var best coverage.Placement
	bestArea, bestOverlaps := -1, 0
	for _, n := range h.model.Neighbors(p) {
		area, overlaps, err := h.model.CoveredArea(n)
		if err != nil {
			return nil, 0, 0, err
		}
		if area > bestArea {
			best, bestArea, bestOverlaps = n, area, overlaps
		}
	}
	return best, bestArea, bestOverlaps, nil
}

func (h *HillClimber) setProgress(restart, bestArea int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restart = restart
	h.bestArea = bestArea
}

// GetBestArea returns the best area over completed restarts
func (h *HillClimber) GetBestArea() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bestArea
}

// GetRestart returns the index of the last finished restart
func (h *HillClimber) GetRestart() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.restart
}
