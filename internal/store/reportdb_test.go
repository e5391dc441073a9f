package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

func setupTestDB(t *testing.T) *ReportDB {
	t.Helper()
	db, err := Open(t.TempDir(), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleReport(t *testing.T) *search.ComparisonReport {
	t.Helper()
	report, err := search.Compare(
		&search.Result{
			Algorithm:  search.AlgorithmHillClimbing,
			Area:       9000,
			Elapsed:    1500 * time.Millisecond,
			Iterations: 20,
			Placement:  coverage.Placement{{X: 15, Y: 15}, {X: 50, Y: 50}},
		},
		&search.Result{
			Algorithm:  search.AlgorithmSimulatedAnnealing,
			Area:       9500,
			Elapsed:    800 * time.Millisecond,
			Iterations: 180,
			Placement:  coverage.Placement{{X: 20, Y: 20}, {X: 60, Y: 60}},
		},
	)
	require.NoError(t, err)
	return report
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database file", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested")
		db, err := Open(dir, DefaultOptions())
		require.NoError(t, err)
		defer db.Close()
		assert.Equal(t, filepath.Join(dir, DatabaseFile), db.Path())
	})

	t.Run("missing database without create", func(t *testing.T) {
		t.Parallel()
		_, err := Open(t.TempDir(), Options{})
		assert.Error(t, err)
	})

	t.Run("reopen existing database", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, db.SaveRun(context.Background(), &models.Run{
			ID: "run-1", Status: models.RunStatusPending, CreatedAt: time.Now(),
		}, nil))
		require.NoError(t, db.Close())

		db, err = Open(dir, Options{EnableWAL: true})
		require.NoError(t, err)
		defer db.Close()
		_, err = db.GetRun(context.Background(), "run-1")
		assert.NoError(t, err)
	})
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.UnixMilli(1_700_000_000_000)
	run := &models.Run{ID: "run-1", Status: models.RunStatusPending, CreatedAt: created}
	exp := config.DefaultExperiment()
	exp.Seed = 42
	require.NoError(t, db.SaveRun(ctx, run, exp))

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, got.Run.Status)
	assert.True(t, got.Run.CreatedAt.Equal(created))
	assert.True(t, got.Run.StartedAt.IsZero())
	require.NotNil(t, got.Experiment)
	assert.Equal(t, int64(42), got.Experiment.Seed)

	// Updating without an experiment keeps the stored one
	run.Status = models.RunStatusCompleted
	run.StartedAt = created.Add(time.Second)
	run.EndedAt = created.Add(3 * time.Second)
	require.NoError(t, db.SaveRun(ctx, run, nil))

	got, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Run.Status)
	assert.Equal(t, 2*time.Second, got.Run.Duration())
	require.NotNil(t, got.Experiment)
	assert.Equal(t, 10, got.Experiment.SensorCount)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	_, err := db.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = db.GetReport(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveRun(ctx, &models.Run{
			ID: id, Status: models.RunStatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, nil))
	}

	runs, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].Run.ID)
	assert.Equal(t, "b", runs[1].Run.ID)
	assert.Nil(t, runs[0].Experiment)
}

func TestSaveAndGetReport(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRun(ctx, &models.Run{ID: "run-1", Status: models.RunStatusCompleted, CreatedAt: time.Now()}, nil))
	report := sampleReport(t)
	require.NoError(t, db.SaveReport(ctx, "run-1", report))

	got, err := db.GetReport(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Same(t, got.Results[0], got.Winner)
	assert.Equal(t, search.AlgorithmSimulatedAnnealing, got.Winner.Algorithm)
	assert.Equal(t, 9500, got.Winner.Area)
	assert.InDelta(t, report.Improvement, got.Improvement, 1e-9)
	assert.Equal(t, report.Results[1].Placement, got.Results[1].Placement)

	// Saving again replaces the previous result rows
	require.NoError(t, db.SaveReport(ctx, "run-1", report))
	rows, err := db.BestResults(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSaveReportRejectsEmpty(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	assert.Error(t, db.SaveReport(context.Background(), "run-1", nil))
	assert.Error(t, db.SaveReport(context.Background(), "run-1", &search.ComparisonReport{}))
}

func TestBestResults(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, db.SaveRun(ctx, &models.Run{ID: id, Status: models.RunStatusCompleted, CreatedAt: time.Now()}, nil))
	}
	require.NoError(t, db.SaveReport(ctx, "run-1", sampleReport(t)))

	second, err := search.Compare(&search.Result{
		Algorithm: search.AlgorithmHillClimbing, Area: 9700, Iterations: 20,
		Placement: coverage.Placement{{X: 30, Y: 30}},
	})
	require.NoError(t, err)
	require.NoError(t, db.SaveReport(ctx, "run-2", second))

	rows, err := db.BestResults(ctx, search.AlgorithmHillClimbing, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-2", rows[0].RunID)
	assert.Equal(t, 9700, rows[0].Area)
	assert.Equal(t, 9000, rows[1].Area)
	assert.Equal(t, 1500*time.Millisecond, rows[1].Elapsed)

	all, err := db.BestResults(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 9700, all[0].Area)
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRun(ctx, &models.Run{ID: "run-1", Status: models.RunStatusCompleted, CreatedAt: time.Now()}, nil))
	require.NoError(t, db.SaveReport(ctx, "run-1", sampleReport(t)))

	require.NoError(t, db.DeleteRun(ctx, "run-1"))
	_, err := db.GetReport(ctx, "run-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	rows, err := db.BestResults(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.True(t, errors.Is(db.DeleteRun(ctx, "run-1"), ErrNotFound))
}
