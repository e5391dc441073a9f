package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// Prometheus exports search and run metrics. Each instance owns its registry.
type Prometheus struct {
	registry *prometheus.Registry

	SearchesTotal      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	SearchIterations   *prometheus.HistogramVec
	BestArea           *prometheus.GaugeVec
	CurrentArea        *prometheus.GaugeVec
	Temperature        prometheus.Gauge
	ProgressEvents     *prometheus.CounterVec
	DegradedPlacements *prometheus.CounterVec
	RejectedMoves      prometheus.Counter

	RunsTotal  *prometheus.CounterVec
	ActiveRuns prometheus.Gauge
}

// NewPrometheus registers all metrics under namespace on a fresh registry,
// together with the Go runtime and process collectors.
func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of finished searches",
			},
			[]string{"algorithm", "outcome"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Wall time of finished searches",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"algorithm"},
		),
		SearchIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_iterations",
				Help:      "Restarts or cooling steps performed by finished searches",
				Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
			[]string{"algorithm"},
		),
		BestArea: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "best_area",
				Help:      "Best covered area of the last finished search",
			},
			[]string{"algorithm"},
		),
		CurrentArea: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_area",
				Help:      "Covered area of the placement under evaluation",
			},
			[]string{"algorithm"},
		),
		Temperature: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "annealing_temperature",
				Help:      "Current simulated annealing temperature",
			},
		),
		ProgressEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_events_total",
				Help:      "Progress events emitted by searches",
			},
			[]string{"algorithm"},
		),
		DegradedPlacements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_placements_total",
				Help:      "Random placements that ran out of attempts before placing every sensor",
			},
			[]string{"algorithm"},
		),
		RejectedMoves: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "annealing_rejected_moves_total",
				Help:      "Annealing perturbations rejected because of an overlap",
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Experiment runs by terminal status",
			},
			[]string{"status"},
		),
		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Experiment runs currently executing",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordResult records a finished search
func (m *Prometheus) RecordResult(r *search.Result) {
	outcome := "completed"
	if r.Cancelled {
		outcome = "cancelled"
	}
	m.SearchesTotal.WithLabelValues(r.Algorithm, outcome).Inc()
	m.SearchDuration.WithLabelValues(r.Algorithm).Observe(r.Seconds())
	m.SearchIterations.WithLabelValues(r.Algorithm).Observe(float64(r.Iterations))
	m.BestArea.WithLabelValues(r.Algorithm).Set(float64(r.Area))
	if r.Degraded > 0 {
		m.DegradedPlacements.WithLabelValues(r.Algorithm).Add(float64(r.Degraded))
	}
	if r.Rejected > 0 {
		m.RejectedMoves.Add(float64(r.Rejected))
	}
}

// RecordReport records every result of a comparison
func (m *Prometheus) RecordReport(report *search.ComparisonReport) {
	if report == nil {
		return
	}
	for _, r := range report.Results {
		m.RecordResult(r)
	}
}

// RunStarted marks a run as executing
func (m *Prometheus) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished records the terminal status of a run that was executing
func (m *Prometheus) RunFinished(status models.RunStatus) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(string(status)).Inc()
}

// Observer returns a search observer updating the live gauges
func (m *Prometheus) Observer() search.Observer {
	return promObserver{m: m}
}

type promObserver struct {
	m *Prometheus
}

func (o promObserver) Log(string) {}

func (o promObserver) OnProgress(p search.Progress) {
	o.m.ProgressEvents.WithLabelValues(p.Algorithm).Inc()
	o.m.CurrentArea.WithLabelValues(p.Algorithm).Set(float64(p.CurrentArea))
	if p.Algorithm == search.AlgorithmSimulatedAnnealing {
		o.m.Temperature.Set(p.Temperature)
	}
}

func (o promObserver) Sleep(context.Context, time.Duration) {}
