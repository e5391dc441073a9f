package simd

import (
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// fastExperiment runs both searches without any pacing
func fastExperiment() *config.Experiment {
	exp := config.DefaultExperiment()
	exp.Seed = 42
	exp.Pacing.StepDelay = "0s"
	exp.Pacing.AlgorithmPause = "0s"
	return exp
}

// slowExperiment paces every step so that a run stays active for a while
func slowExperiment() *config.Experiment {
	exp := fastExperiment()
	exp.Pacing.StepDelay = "20ms"
	return exp
}

func waitForStatus(t *testing.T, store *RunStore, runID string, want models.RunStatus) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := store.Get(runID)
		if ok && rec.Run.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := store.Get(runID)
	if rec == nil {
		t.Fatalf("run %s not found", runID)
	}
	t.Fatalf("run %s: expected status %s, got %s", runID, want, rec.Run.Status)
	return nil
}

func waitForProgress(t *testing.T, store *RunStore, runID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := store.Get(runID); ok && rec.ProgressSeq > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s reported no progress", runID)
}
