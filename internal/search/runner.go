package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// DefaultAlgorithmPause is the wait between two consecutive searches
const DefaultAlgorithmPause = 2 * time.Second

// Runner runs searches one after the other against a shared model and
// compares their results.
type Runner struct {
	model     *coverage.Model
	searchers []Searcher
	pause     time.Duration
	observer  Observer
}

// NewRunner creates a runner for the given searchers, run in order
func NewRunner(model *coverage.Model, searchers ...Searcher) *Runner {
	return &Runner{
		model:     model,
		searchers: searchers,
		pause:     DefaultAlgorithmPause,
		observer:  NopObserver{},
	}
}

// NewExperimentRunner builds the model, a hill climber and an annealer from
// exp. Both searches share observer. Each search gets its own random source
// derived from exp.Seed.
func NewExperimentRunner(exp *config.Experiment, observer Observer) (*Runner, error) {
	if err := config.ValidateExperiment(exp); err != nil {
		return nil, err
	}
	model, err := coverage.NewModel(coverage.ParamsFromExperiment(exp))
	if err != nil {
		return nil, err
	}
	stepDelay, err := exp.Pacing.GetStepDelay()
	if err != nil {
		return nil, fmt.Errorf("invalid step delay: %w", err)
	}
	pause, err := exp.Pacing.GetAlgorithmPause()
	if err != nil {
		return nil, fmt.Errorf("invalid algorithm pause: %w", err)
	}
	schedule, err := NewGeometricSchedule(
		exp.Annealing.InitialTemperature,
		exp.Annealing.CoolingRate,
		exp.Annealing.MinTemperature,
	)
	if err != nil {
		return nil, err
	}

	hillSeed, annealSeed := exp.Seed, exp.Seed
	if exp.Seed != 0 {
		annealSeed = exp.Seed + 1
	}

	hc := NewHillClimber(model, utils.NewRandSource(hillSeed), exp.HillClimbing.MaxRestarts).
		WithObserver(observer).
		WithStepDelay(stepDelay)
	sa := NewAnnealer(model, utils.NewRandSource(annealSeed), schedule).
		WithObserver(observer).
		WithStepDelay(stepDelay).
		WithPerturbationRange(exp.Annealing.PerturbationRange).
		WithLogEvery(exp.Annealing.LogEvery)

	return NewRunner(model, hc, sa).WithObserver(observer).WithPause(pause), nil
}

// WithPause sets the wait between searches. Zero disables it.
func (r *Runner) WithPause(d time.Duration) *Runner {
	if d >= 0 {
		r.pause = d
	}
	return r
}

// WithObserver sets the observer receiving the runner's log lines
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// Model returns the model shared by the searches
func (r *Runner) Model() *coverage.Model {
	return r.model
}

// Run executes every searcher in order and returns the comparison. If ctx is
// cancelled the report of the searches run so far is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context) (*ComparisonReport, error) {
	ctx, span := tracer.Start(ctx, "search.run")
	defer span.End()

	obs := guard(r.observer)
	results := make([]*Result, 0, len(r.searchers))

	for i, s := range r.searchers {
		if i > 0 && r.pause > 0 {
			obs.Log(fmt.Sprintf("pausing %s before %s", r.pause, s.Name()))
			if err := wait(ctx, r.pause); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		obs.Log(fmt.Sprintf("algorithm %d of %d: %s", i+1, len(r.searchers), s.Name()))
		res, err := s.Search(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		results = append(results, res)
		if res.Cancelled {
			break
		}
	}

	if len(results) == 0 {
		return nil, ctx.Err()
	}

	report, err := Compare(results...)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(FormatComparison(report), "\n") {
		obs.Log(line)
	}

	span.SetAttributes(
		attribute.String("coverage.winner", report.Winner.Algorithm),
		attribute.Int("coverage.winner_area", report.Winner.Area),
		attribute.Float64("coverage.improvement", report.Improvement),
	)

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		span.SetStatus(codes.Error, "cancelled")
		return report, err
	}
	return report, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
