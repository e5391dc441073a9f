package metrics

import (
	"context"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
)

// Series recorded for every search
const (
	MetricCurrentArea = "current_area"
	MetricBestArea    = "best_area"
	MetricTemperature = "temperature"
	MetricOverlaps    = "overlaps"
	MetricFinalArea   = "final_area"
	MetricElapsedSec  = "elapsed_seconds"
)

// AlgorithmLabels creates a labels map for an algorithm
func AlgorithmLabels(algorithm string) map[string]string {
	return map[string]string{"algorithm": algorithm}
}

// RecordProgress adds one progress snapshot to the collector
func RecordProgress(c *Collector, p search.Progress, timestamp time.Time) {
	labels := AlgorithmLabels(p.Algorithm)
	c.Record(MetricCurrentArea, float64(p.CurrentArea), timestamp, labels)
	c.Record(MetricBestArea, float64(p.BestArea), timestamp, labels)
	c.Record(MetricOverlaps, float64(p.Overlaps), timestamp, labels)
	if p.Temperature > 0 {
		c.Record(MetricTemperature, p.Temperature, timestamp, labels)
	}
}

// RecordResult adds the outcome of a finished search to the collector
func RecordResult(c *Collector, r *search.Result) {
	labels := AlgorithmLabels(r.Algorithm)
	now := time.Now()
	c.Record(MetricFinalArea, float64(r.Area), now, labels)
	c.Record(MetricElapsedSec, r.Seconds(), now, labels)
}

// CollectorObserver feeds search progress into a Collector. It neither logs nor paces.
type CollectorObserver struct {
	Collector *Collector
}

func (o CollectorObserver) Log(string) {}

func (o CollectorObserver) OnProgress(p search.Progress) {
	RecordProgress(o.Collector, p, time.Now())
}

func (o CollectorObserver) Sleep(context.Context, time.Duration) {}
