package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/coverage"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
)

// Progress is a snapshot emitted after each search step. For hill climbing
// Iteration is the restart index and Step the climb move within it; for annealing
// Iteration counts cooling steps. Placement is a private copy owned by the receiver.
type Progress struct {
	Algorithm   string             `json:"algorithm"`
	Iteration   int                `json:"iteration"`
	Step        int                `json:"step,omitempty"`
	CurrentArea int                `json:"current_area"`
	BestArea    int                `json:"best_area"`
	Temperature float64            `json:"temperature,omitempty"`
	Overlaps    int                `json:"overlaps"`
	Placement   coverage.Placement `json:"placement,omitempty"`
}

// Observer receives log lines, progress and pacing requests from the searches.
// It never influences search decisions.
type Observer interface {
	Log(msg string)
	OnProgress(p Progress)
	// Sleep is the pacing hook. It must return early when ctx is done.
	Sleep(ctx context.Context, base time.Duration)
}

// NopObserver discards everything and never sleeps
type NopObserver struct{}

func (NopObserver) Log(string)                           {}
func (NopObserver) OnProgress(Progress)                  {}
func (NopObserver) Sleep(context.Context, time.Duration) {}

// MultiObserver fans log and progress calls out to its members in order.
// Sleep is delegated to the first member only, so delays do not add up.
// A member that panics does not stop delivery to the members after it.
type MultiObserver []Observer

func (m MultiObserver) Log(msg string) {
	for _, o := range m {
		guard(o).Log(msg)
	}
}

func (m MultiObserver) OnProgress(p Progress) {
	for i, o := range m {
		if i > 0 {
			p.Placement = p.Placement.Clone()
		}
		guard(o).OnProgress(p)
	}
}

func (m MultiObserver) Sleep(ctx context.Context, base time.Duration) {
	if len(m) > 0 {
		guard(m[0]).Sleep(ctx, base)
	}
}

// Pacer turns base delays into real waits. A paused pacer returns immediately;
// the search keeps computing at full speed. Safe for concurrent use.
type Pacer struct {
	mu     sync.RWMutex
	delay  time.Duration
	paused bool
}

// NewPacer creates a pacer. A positive delay overrides the base delay the
// searches ask for.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay}
}

func (p *Pacer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Pacer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Pacer) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// SetDelay changes the speed of a running search
func (p *Pacer) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

func (p *Pacer) Delay() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.delay
}

// Sleep waits for the configured delay, or base when no delay is set.
func (p *Pacer) Sleep(ctx context.Context, base time.Duration) {
	p.mu.RLock()
	d, paused := p.delay, p.paused
	p.mu.RUnlock()

	if d <= 0 {
		d = base
	}
	if paused || d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// LogObserver writes search output to a structured logger and paces with an
// optional Pacer. Progress is logged at debug level.
type LogObserver struct {
	logger *slog.Logger
	pacer  *Pacer
}

// NewLogObserver creates an observer logging to l (logger.Default when nil)
func NewLogObserver(l *slog.Logger, pacer *Pacer) *LogObserver {
	if l == nil {
		l = logger.Default
	}
	return &LogObserver{logger: l, pacer: pacer}
}

func (o *LogObserver) Log(msg string) {
	o.logger.Info(msg)
}

func (o *LogObserver) OnProgress(p Progress) {
	o.logger.Debug("search progress",
		"algorithm", p.Algorithm,
		"iteration", p.Iteration,
		"current_area", p.CurrentArea,
		"best_area", p.BestArea,
		"temperature", p.Temperature,
		"overlaps", p.Overlaps,
	)
}

func (o *LogObserver) Sleep(ctx context.Context, base time.Duration) {
	if o.pacer != nil {
		o.pacer.Sleep(ctx, base)
	}
}

// guarded isolates observer panics from the search loop
type guarded struct {
	inner Observer
}

func guard(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	if g, ok := o.(guarded); ok {
		return g
	}
	return guarded{inner: o}
}

func (g guarded) Log(msg string) {
	defer g.recoverPanic("log")
	g.inner.Log(msg)
}

func (g guarded) OnProgress(p Progress) {
	defer g.recoverPanic("progress")
	g.inner.OnProgress(p)
}

func (g guarded) Sleep(ctx context.Context, base time.Duration) {
	defer g.recoverPanic("sleep")
	g.inner.Sleep(ctx, base)
}

func (g guarded) recoverPanic(call string) {
	if r := recover(); r != nil {
		logger.Warn("observer failed", "call", call, "error", fmt.Sprint(r))
	}
}
