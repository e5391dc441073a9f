package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// Annealing defaults of the reference run
const (
	DefaultInitialTemperature = 1000.0
	DefaultCoolingRate        = 0.95
	DefaultMinTemperature     = 0.1
	DefaultPerturbationRange  = 10
	DefaultLogEvery           = 50
)

// Annealer implements simulated annealing over single-sensor perturbations.
// The temperature cools every iteration, whether or not the move is accepted.
type Annealer struct {
	model     *coverage.Model
	rng       *utils.RandSource
	schedule  Schedule
	spread    int
	logEvery  int
	stepDelay time.Duration
	observer  Observer
	initial   coverage.Placement

	mu          sync.RWMutex
	temperature float64
	bestArea    int
}

// NewAnnealer creates an annealer. A nil schedule selects the reference
// geometric schedule 1000 -> 0.1 with factor 0.95.
func NewAnnealer(model *coverage.Model, rng *utils.RandSource, schedule Schedule) *Annealer {
	if schedule == nil {
		schedule = &GeometricSchedule{
			Start: DefaultInitialTemperature,
			Alpha: DefaultCoolingRate,
			Min:   DefaultMinTemperature,
		}
	}
	if rng == nil {
		rng = utils.NewRandSource(0)
	}
	return &Annealer{
		model:    model,
		rng:      rng,
		schedule: schedule,
		spread:   DefaultPerturbationRange,
		logEvery: DefaultLogEvery,
		observer: NopObserver{},
	}
}

// WithObserver sets the observer receiving progress and log lines
func (a *Annealer) WithObserver(o Observer) *Annealer {
	a.observer = o
	return a
}

// WithStepDelay sets the base pacing delay requested after every evaluated move
func (a *Annealer) WithStepDelay(d time.Duration) *Annealer {
	a.stepDelay = d
	return a
}

// WithPerturbationRange sets the maximum integer offset per axis
func (a *Annealer) WithPerturbationRange(spread int) *Annealer {
	if spread > 0 {
		a.spread = spread
	}
	return a
}

// WithLogEvery sets how many iterations pass between log lines. Zero disables them.
func (a *Annealer) WithLogEvery(n int) *Annealer {
	if n >= 0 {
		a.logEvery = n
	}
	return a
}

// WithInitialPlacement starts the search from p instead of a random placement.
// p is used as given.
func (a *Annealer) WithInitialPlacement(p coverage.Placement) *Annealer {
	a.initial = p.Clone()
	return a
}

func (a *Annealer) Name() string {
	return AlgorithmSimulatedAnnealing
}

// Search anneals until the schedule is done and returns the best placement
// seen. When ctx is cancelled the best placement so far is returned with
// Cancelled set.
func (a *Annealer) Search(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "search.simulated_annealing",
		trace.WithAttributes(
			attribute.String("coverage.schedule", a.schedule.Name()),
			attribute.Float64("coverage.initial_temperature", a.schedule.Initial()),
		))
	defer span.End()

	obs := guard(a.observer)
	start := time.Now()

	obs.Log(strings.Repeat("=", 50))
	obs.Log("starting simulated annealing")

	result := &Result{Algorithm: AlgorithmSimulatedAnnealing}

	current := a.initial.Clone()
	if current == nil {
		var err error
		current, err = a.model.RandomPlacement(a.rng)
		if err != nil {
			if !errors.Is(err, coverage.ErrPlacementDegraded) {
				return nil, err
			}
			result.Degraded++
			logger.Warn("degraded placement", "algorithm", AlgorithmSimulatedAnnealing, "error", err)
			obs.Log(err.Error())
		}
	}

	area, overlaps, err := a.model.CoveredArea(current)
	if err != nil {
		return nil, fmt.Errorf("initial placement: %w", err)
	}
	a.model.Commit(current, overlaps)
	best, bestArea, bestOverlaps := current, area, overlaps

	t := a.schedule.Initial()
	a.setProgress(t, bestArea)

	for iteration := 1; !a.schedule.Done(t) && len(current) > 0; iteration++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		result.Iterations++

		obs.OnProgress(Progress{
			Algorithm:   AlgorithmSimulatedAnnealing,
			Iteration:   iteration,
			CurrentArea: area,
			BestArea:    bestArea,
			Temperature: t,
			Overlaps:    overlaps,
			Placement:   current.Clone(),
		})

		candidate, ok := a.model.Perturb(current, a.rng.Intn(len(current)), a.spread, a.rng)
		if !ok {
			result.Rejected++
		} else {
			newArea, newOverlaps, err := a.model.CoveredArea(candidate)
			if err != nil {
				return nil, fmt.Errorf("iteration %d: %w", iteration, err)
			}
			if accept(newArea-area, t, a.rng) {
				current, area, overlaps = candidate, newArea, newOverlaps
				result.Steps++
				a.model.Commit(current, overlaps)
				if area > bestArea {
					best, bestArea, bestOverlaps = current, area, overlaps
				}
			}
			obs.Sleep(ctx, a.stepDelay)
		}

		if a.logEvery > 0 && iteration%a.logEvery == 0 {
			obs.Log(fmt.Sprintf("iteration %d: T=%.2f, area=%d", iteration, t, area))
		}
		result.History = append(result.History, bestArea)

		t = a.schedule.Next(t)
		a.setProgress(t, bestArea)
	}

	a.model.Commit(best, bestOverlaps)
	result.Area = bestArea
	result.Overlaps = bestOverlaps
	result.Placement = best.Clone()
	result.FinalTemperature = t
	result.Elapsed = time.Since(start)

	obs.Log(fmt.Sprintf("simulated annealing finished: area %d", bestArea))
	span.SetAttributes(
		attribute.Int("coverage.area", result.Area),
		attribute.Int("coverage.iterations", result.Iterations),
		attribute.Int("coverage.rejected", result.Rejected),
		attribute.Bool("coverage.cancelled", result.Cancelled),
	)
	return result, nil
}

// accept applies the Metropolis criterion to an area change
func accept(delta int, t float64, rng *utils.RandSource) bool {
	if delta > 0 {
		return true
	}
	return rng.Float64() < math.Exp(float64(delta)/t)
}

func (a *Annealer) setProgress(t float64, bestArea int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.temperature = t
	a.bestArea = bestArea
}

// GetTemperature returns the current temperature
func (a *Annealer) GetTemperature() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.temperature
}

// GetBestArea returns the best area seen so far
func (a *Annealer) GetBestArea() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bestArea
}
