package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
)

type recordingObserver struct {
	mu       sync.Mutex
	logs     []string
	progress []Progress
	sleeps   int
	onStep   func(p Progress)
}

func (r *recordingObserver) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recordingObserver) OnProgress(p Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	hook := r.onStep
	r.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

func (r *recordingObserver) Sleep(context.Context, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps++
}

func (r *recordingObserver) snapshot() ([]string, []Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...), append([]Progress(nil), r.progress...)
}

type panickingObserver struct{}

func (panickingObserver) Log(string)                           { panic("log exploded") }
func (panickingObserver) OnProgress(Progress)                  { panic("progress exploded") }
func (panickingObserver) Sleep(context.Context, time.Duration) { panic("sleep exploded") }

func referenceModel(t *testing.T) *coverage.Model {
	t.Helper()
	m, err := coverage.NewModel(coverage.Params{Size: 120, Radius: 15, Sensors: 10})
	require.NoError(t, err)
	return m
}
