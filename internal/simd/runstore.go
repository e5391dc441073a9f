package simd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/internal/metrics"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/internal/store"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// maxLogLines bounds the log lines kept per run
const maxLogLines = 500

var (
	ErrRunExists         = errors.New("run already exists")
	ErrInvalidRunID      = errors.New("invalid run id")
	ErrInvalidExperiment = errors.New("invalid experiment")
)

// Persistence stores runs and reports beyond the lifetime of the process.
// *store.ReportDB implements it.
type Persistence interface {
	SaveRun(ctx context.Context, run *models.Run, exp *config.Experiment) error
	SaveReport(ctx context.Context, runID string, report *search.ComparisonReport) error
	GetRun(ctx context.Context, id string) (*store.StoredRun, error)
	GetReport(ctx context.Context, runID string) (*search.ComparisonReport, error)
	ListRuns(ctx context.Context, limit int) ([]*store.StoredRun, error)
}

// LogLine is one observer log line of a run
type LogLine struct {
	Seq     int64     `json:"seq"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// RunRecord is the state of one run. Records returned by RunStore are
// snapshots; mutate through the store.
type RunRecord struct {
	Run        models.Run
	Experiment *config.Experiment
	Report     *search.ComparisonReport
	// Progress holds the latest snapshot per algorithm
	Progress    map[string]search.Progress
	ProgressSeq int64
	Logs        []LogLine
	Collector   *metrics.Collector
}

type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]*RunRecord
	logSeq  int64
	persist Persistence
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

// WithPersistence writes every run and report through to p and falls back
// to p for runs not held in memory.
func (s *RunStore) WithPersistence(p Persistence) *RunStore {
	s.persist = p
	return s
}

func validateRunID(runID string) error {
	if strings.ContainsAny(runID, "/:?# ") {
		return fmt.Errorf("%w: %q cannot contain '/', ':', '?', '#' or spaces", ErrInvalidRunID, runID)
	}
	return nil
}

// Create registers a pending run for exp. An empty runID is generated.
func (s *RunStore) Create(runID string, exp *config.Experiment) (*RunRecord, error) {
	if exp == nil {
		return nil, fmt.Errorf("%w: experiment is required", ErrInvalidExperiment)
	}
	if err := config.ValidateExperiment(exp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
	}
	if err := coverage.ParamsFromExperiment(exp).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
	}
	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.runs[runID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	rec := &RunRecord{
		Run: models.Run{
			ID:        runID,
			Status:    models.RunStatusPending,
			CreatedAt: time.Now().UTC(),
		},
		Experiment: exp,
		Progress:   make(map[string]search.Progress),
		Collector:  metrics.NewCollector(),
	}
	s.runs[runID] = rec
	snap := rec.snapshot()
	s.mu.Unlock()

	s.saveRun(&snap.Run, exp)
	return snap, nil
}

// Get returns a snapshot of a run, loading it from persistence when it is
// not in memory.
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	if ok {
		snap := rec.snapshot()
		s.mu.RUnlock()
		return snap, true
	}
	s.mu.RUnlock()

	return s.load(runID)
}

func (s *RunStore) load(runID string) (*RunRecord, bool) {
	if s.persist == nil {
		return nil, false
	}
	ctx := context.Background()
	stored, err := s.persist.GetRun(ctx, runID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("failed to load run", "run_id", runID, "error", err)
		}
		return nil, false
	}
	rec := &RunRecord{
		Run:        stored.Run,
		Experiment: stored.Experiment,
		Progress:   make(map[string]search.Progress),
		Collector:  metrics.NewCollector(),
	}
	if report, err := s.persist.GetReport(ctx, runID); err == nil {
		rec.Report = report
	}
	// A run persisted as running was interrupted by a restart
	if !rec.Run.Status.IsTerminal() && rec.Run.Status != models.RunStatusPending {
		rec.Run.Status = models.RunStatusFailed
		rec.Run.Error = "interrupted by restart"
	}

	s.mu.Lock()
	if existing, ok := s.runs[runID]; ok {
		rec = existing
	} else {
		s.runs[runID] = rec
	}
	snap := rec.snapshot()
	s.mu.Unlock()
	return snap, true
}

// List returns runs newest first, optionally filtered by status.
// An empty status matches every run.
func (s *RunStore) List(limit, offset int, status models.RunStatus) []*RunRecord {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	all := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status == "" || rec.Run.Status == status {
			all = append(all, rec.snapshot())
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Run.CreatedAt.Equal(all[j].Run.CreatedAt) {
			return all[i].Run.ID < all[j].Run.ID
		}
		return all[i].Run.CreatedAt.After(all[j].Run.CreatedAt)
	})

	if offset >= len(all) {
		return []*RunRecord{}
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Restore loads the most recent persisted runs into memory
func (s *RunStore) Restore(ctx context.Context, limit int) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	stored, err := s.persist.ListRuns(ctx, limit)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, sr := range stored {
		if _, ok := s.load(sr.Run.ID); ok {
			restored++
		}
	}
	return restored, nil
}

// SetStatus moves a run to status. Terminal runs cannot change status.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	rec, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.IsTerminal() {
		snap := rec.snapshot()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}
	snap := rec.apply(status, errMsg)
	s.mu.Unlock()

	s.saveRun(&snap.Run, nil)
	return snap, nil
}

// Transition moves a run from one status to another under a single lock.
// When the run is no longer in from, the current snapshot is returned with
// ErrRunTerminal or ErrRunStatusChanged.
func (s *RunStore) Transition(runID string, from, to models.RunStatus) (*RunRecord, error) {
	s.mu.Lock()
	rec, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if current := rec.Run.Status; current != from {
		snap := rec.snapshot()
		s.mu.Unlock()
		if current.IsTerminal() {
			return snap, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, current)
		}
		return snap, fmt.Errorf("%w: %s is %s, not %s", ErrRunStatusChanged, runID, current, from)
	}
	snap := rec.apply(to, "")
	s.mu.Unlock()

	s.saveRun(&snap.Run, nil)
	return snap, nil
}

// apply must be called with the store lock held
func (rec *RunRecord) apply(status models.RunStatus, errMsg string) *RunRecord {
	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}
	now := time.Now().UTC()
	if status == models.RunStatusRunning && rec.Run.StartedAt.IsZero() {
		rec.Run.StartedAt = now
	}
	if status.IsTerminal() {
		rec.Run.EndedAt = now
	}
	return rec.snapshot()
}

// SetReport attaches the comparison of a run
func (s *RunStore) SetReport(runID string, report *search.ComparisonReport) error {
	s.mu.Lock()
	rec, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Report = report
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveReport(context.Background(), runID, report); err != nil {
			logger.Warn("failed to persist report", "run_id", runID, "error", err)
		}
	}
	return nil
}

// SetProgress records the latest progress of an algorithm
func (s *RunStore) SetProgress(runID string, p search.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[runID]; ok {
		rec.Progress[p.Algorithm] = p
		rec.ProgressSeq++
	}
}

// AppendLog adds an observer log line to a run, dropping the oldest lines
// beyond maxLogLines.
func (s *RunStore) AppendLog(runID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return
	}
	s.logSeq++
	rec.Logs = append(rec.Logs, LogLine{Seq: s.logSeq, At: time.Now().UTC(), Message: msg})
	if over := len(rec.Logs) - maxLogLines; over > 0 {
		rec.Logs = append(rec.Logs[:0:0], rec.Logs[over:]...)
	}
}

// LogsSince returns the log lines of a run with a sequence above seq
func (s *RunStore) LogsSince(runID string, seq int64) []LogLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil
	}
	var out []LogLine
	for _, l := range rec.Logs {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out
}

func (s *RunStore) saveRun(run *models.Run, exp *config.Experiment) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveRun(context.Background(), run, exp); err != nil {
		logger.Warn("failed to persist run", "run_id", run.ID, "error", err)
	}
}

// snapshot copies the mutable parts of rec; callers hold the store lock
func (rec *RunRecord) snapshot() *RunRecord {
	snap := *rec
	snap.Progress = make(map[string]search.Progress, len(rec.Progress))
	for k, v := range rec.Progress {
		snap.Progress[k] = v
	}
	snap.Logs = append([]LogLine(nil), rec.Logs...)
	if rec.Run.Metadata != nil {
		snap.Run.Metadata = make(map[string]string, len(rec.Run.Metadata))
		for k, v := range rec.Run.Metadata {
			snap.Run.Metadata[k] = v
		}
	}
	return &snap
}
