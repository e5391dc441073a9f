package simd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/metrics"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	prom     *metrics.Prometheus
	notifier *Notifier

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	pacers  map[string]*search.Pacer
	wg      sync.WaitGroup
}

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunTerminal   = errors.New("run is terminal")
	ErrRunIDMissing  = errors.New("run_id is required")
	ErrRunNotRunning = errors.New("run is not running")

	ErrRunStatusChanged = errors.New("run status changed")
)

func NewRunExecutor(store *RunStore) *RunExecutor {
	return &RunExecutor{
		store:   store,
		cancels: make(map[string]context.CancelFunc),
		pacers:  make(map[string]*search.Pacer),
	}
}

// WithPrometheus exports run and search metrics to p
func (e *RunExecutor) WithPrometheus(p *metrics.Prometheus) *RunExecutor {
	e.prom = p
	return e
}

// WithNotifier posts completion callbacks through n
func (e *RunExecutor) WithNotifier(n *Notifier) *RunExecutor {
	e.notifier = n
	return e
}

// Start begins executing a run asynchronously.
// Returns the updated run state (running) or an error.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status == models.RunStatusRunning {
		return rec, nil
	}
	if rec.Run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	if rec.Experiment == nil {
		return nil, fmt.Errorf("%w: run %s has no experiment", ErrInvalidExperiment, runID)
	}
	stepDelay, err := rec.Experiment.Pacing.GetStepDelay()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
	}

	// Only the caller that wins the pending to running transition launches
	updated, err := e.store.Transition(runID, models.RunStatusPending, models.RunStatusRunning)
	if errors.Is(err, ErrRunStatusChanged) && updated.Run.Status == models.RunStatusRunning {
		return updated, nil
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	pacer := search.NewPacer(0)
	e.mu.Lock()
	e.cancels[runID] = cancel
	e.pacers[runID] = pacer
	e.mu.Unlock()

	if e.prom != nil {
		e.prom.RunStarted()
	}
	logger.Info("run started", "run_id", runID, "step_delay", stepDelay)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSearches(ctx, runID, pacer)
	}()
	return updated, nil
}

// Stop requests cancellation of a run and marks it cancelled. A pending run
// is cancelled without ever starting.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	if _, ok := e.store.Get(runID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	return e.store.SetStatus(runID, models.RunStatusCancelled, "")
}

// Pause suspends pacing delays of a running run; the search keeps running
// at full speed.
func (e *RunExecutor) Pause(runID string) error {
	pacer, err := e.pacer(runID)
	if err != nil {
		return err
	}
	pacer.Pause()
	e.store.AppendLog(runID, "pacing paused")
	return nil
}

// Resume restores pacing delays
func (e *RunExecutor) Resume(runID string) error {
	pacer, err := e.pacer(runID)
	if err != nil {
		return err
	}
	pacer.Resume()
	e.store.AppendLog(runID, "pacing resumed")
	return nil
}

// SetDelay overrides the per-step delay of a running run. Zero restores
// the experiment's step delay.
func (e *RunExecutor) SetDelay(runID string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("delay cannot be negative: %s", d)
	}
	pacer, err := e.pacer(runID)
	if err != nil {
		return err
	}
	pacer.SetDelay(d)
	e.store.AppendLog(runID, fmt.Sprintf("step delay set to %s", d))
	return nil
}

// Paced reports whether the run is executing and whether its pacing is paused
func (e *RunExecutor) Paced(runID string) (running, paused bool) {
	pacer, err := e.pacer(runID)
	if err != nil {
		return false, false
	}
	return true, pacer.Paused()
}

func (e *RunExecutor) pacer(runID string) (*search.Pacer, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	e.mu.Lock()
	pacer, ok := e.pacers[runID]
	e.mu.Unlock()
	if !ok {
		if _, exists := e.store.Get(runID); !exists {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("%w: %s", ErrRunNotRunning, runID)
	}
	return pacer, nil
}

// Wait blocks until every started run has finished
func (e *RunExecutor) Wait() {
	e.wg.Wait()
}

// Shutdown cancels all running runs and waits for them until ctx is done
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	delete(e.pacers, runID)
	e.mu.Unlock()
}

// runObserver forwards search output into the run store
type runObserver struct {
	store *RunStore
	runID string
}

func (o runObserver) Log(msg string) {
	o.store.AppendLog(o.runID, msg)
}

func (o runObserver) OnProgress(p search.Progress) {
	o.store.SetProgress(o.runID, p)
}

func (o runObserver) Sleep(context.Context, time.Duration) {}

func (e *RunExecutor) observer(runID string, rec *RunRecord, pacer *search.Pacer, log *slog.Logger) search.Observer {
	// The log observer comes first so that it owns pacing
	obs := search.MultiObserver{
		search.NewLogObserver(log, pacer),
		runObserver{store: e.store, runID: runID},
	}
	if rec.Collector != nil {
		obs = append(obs, metrics.CollectorObserver{Collector: rec.Collector})
	}
	if e.prom != nil {
		obs = append(obs, e.prom.Observer())
	}
	return obs
}

func (e *RunExecutor) runSearches(ctx context.Context, runID string, pacer *search.Pacer) {
	defer e.cleanup(runID)

	rec, ok := e.store.Get(runID)
	if !ok {
		logger.Error("run not found", "run_id", runID)
		return
	}
	log := logger.With("run_id", runID)
	if rec.Collector != nil {
		rec.Collector.Start()
	}

	runner, err := search.NewExperimentRunner(rec.Experiment, e.observer(runID, rec, pacer, log))
	if err != nil {
		log.Error("failed to build runner", "error", err)
		e.finish(runID, rec, models.RunStatusFailed, fmt.Sprintf("invalid experiment: %v", err))
		return
	}

	report, err := runner.Run(ctx)
	if report != nil {
		if setErr := e.store.SetReport(runID, report); setErr != nil {
			log.Error("failed to store report", "error", setErr)
		}
		if rec.Collector != nil {
			for _, r := range report.Results {
				metrics.RecordResult(rec.Collector, r)
			}
		}
		if e.prom != nil {
			e.prom.RecordReport(report)
		}
	}

	switch {
	case err == nil:
		log.Info("run completed",
			"winner", report.Winner.Algorithm,
			"best_area", report.Winner.Area,
			"improvement_percent", report.Improvement)
		e.finish(runID, rec, models.RunStatusCompleted, "")
	case errors.Is(err, context.Canceled):
		log.Info("run cancelled")
		e.finish(runID, rec, models.RunStatusCancelled, "")
	default:
		log.Error("run failed", "error", err)
		e.finish(runID, rec, models.RunStatusFailed, err.Error())
	}
}

// finish records the terminal status unless Stop already did, then reports
// metrics and sends the callback.
func (e *RunExecutor) finish(runID string, rec *RunRecord, status models.RunStatus, errMsg string) {
	if rec.Collector != nil {
		rec.Collector.Stop()
	}
	final, err := e.store.SetStatus(runID, status, errMsg)
	if err != nil && !errors.Is(err, ErrRunTerminal) {
		logger.Error("failed to set final status", "run_id", runID, "status", status, "error", err)
		return
	}
	if final == nil {
		return
	}
	if e.prom != nil {
		e.prom.RunFinished(final.Run.Status)
	}
	if e.notifier != nil && rec.Experiment != nil {
		e.notifier.Notify(rec.Experiment.Callback, final)
	}
}
