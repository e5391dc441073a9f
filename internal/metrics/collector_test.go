package metrics

import (
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatalf("expected non-nil collector")
	}
	if len(c.GetMetricNames()) != 0 {
		t.Fatalf("expected no metrics in a new collector")
	}
}

func TestCollectorRecordAndGetTimeSeries(t *testing.T) {
	c := NewCollector()
	c.Start()

	now := time.Now()
	c.Record(MetricBestArea, 6000, now, nil)
	c.Record(MetricBestArea, 6200, now.Add(time.Second), nil)
	c.Record(MetricBestArea, 6500, now.Add(2*time.Second), nil)

	points := c.GetTimeSeries(MetricBestArea, nil)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{6000, 6200, 6500} {
		if points[i].Value != want {
			t.Fatalf("point %d: expected %v, got %v", i, want, points[i].Value)
		}
	}

	points[0].Value = -1
	if c.GetTimeSeries(MetricBestArea, nil)[0].Value != 6000 {
		t.Fatalf("GetTimeSeries must return copies")
	}
}

func TestCollectorSeparatesLabels(t *testing.T) {
	c := NewCollector()
	hc := AlgorithmLabels(search.AlgorithmHillClimbing)
	sa := AlgorithmLabels(search.AlgorithmSimulatedAnnealing)

	now := time.Now()
	c.Record(MetricCurrentArea, 1, now, hc)
	c.Record(MetricCurrentArea, 2, now, sa)
	c.Record(MetricCurrentArea, 3, now, sa)

	if got := c.Values(MetricCurrentArea, hc); len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected hill climbing series %v", got)
	}
	if got := c.Values(MetricCurrentArea, sa); len(got) != 2 {
		t.Fatalf("unexpected annealing series %v", got)
	}

	labels := c.GetLabelsForMetric(MetricCurrentArea)
	if len(labels) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(labels))
	}
	if labels[0]["algorithm"] != search.AlgorithmHillClimbing {
		t.Fatalf("expected label sets in sorted order, got %v", labels)
	}
	if c.GetLabelsForMetric("missing") != nil {
		t.Fatalf("expected nil labels for unknown metric")
	}
}

func TestCollectorSummaryAggregation(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	for i, v := range []float64{10, 20, 30, 40, 50} {
		c.Record(MetricTemperature, v, now.Add(time.Duration(i)*time.Second), nil)
	}

	agg := c.GetSummary().Aggregations[MetricTemperature]
	if agg == nil {
		t.Fatalf("expected non-nil aggregation")
	}
	if agg.Count != 5 || agg.Sum != 150 || agg.Min != 10 || agg.Max != 50 || agg.Mean != 30 {
		t.Fatalf("unexpected aggregation %+v", agg)
	}
	// population deviation of 10..50 is √200
	if agg.StdDev < 14.14 || agg.StdDev > 14.15 {
		t.Fatalf("expected std dev 14.14, got %v", agg.StdDev)
	}
	if agg.P50 != 30 {
		t.Fatalf("expected p50 30, got %v", agg.P50)
	}
	if agg.P95 < 47.9 || agg.P95 > 48.1 {
		t.Fatalf("expected p95 48, got %v", agg.P95)
	}

	if _, ok := c.GetSummary().Aggregations["missing"]; ok {
		t.Fatalf("expected no aggregation for unknown metric")
	}
}

func TestCollectorSummaryMergesLabels(t *testing.T) {
	c := NewCollector()
	c.Start()
	now := time.Now()
	c.Record(MetricFinalArea, 9000, now, AlgorithmLabels(search.AlgorithmHillClimbing))
	c.Record(MetricFinalArea, 9500, now, AlgorithmLabels(search.AlgorithmSimulatedAnnealing))
	c.Stop()

	summary := c.GetSummary()
	if len(summary.Metrics[MetricFinalArea]) != 2 {
		t.Fatalf("expected 2 merged values, got %v", summary.Metrics[MetricFinalArea])
	}
	if summary.Aggregations[MetricFinalArea].Max != 9500 {
		t.Fatalf("expected max 9500, got %+v", summary.Aggregations[MetricFinalArea])
	}
	if summary.Duration < 0 {
		t.Fatalf("expected non-negative duration")
	}
}

func TestCollectorStopFreezesSummary(t *testing.T) {
	c := NewCollector()
	c.Start()
	c.Stop()

	first := c.GetSummary()
	time.Sleep(5 * time.Millisecond)
	second := c.GetSummary()
	if !first.EndTime.Equal(second.EndTime) || first.Duration != second.Duration {
		t.Fatalf("expected a stopped collector to report a fixed end time, got %v and %v", first.EndTime, second.EndTime)
	}
	if first.EndTime.Before(first.StartTime) {
		t.Fatalf("end time %v precedes start time %v", first.EndTime, first.StartTime)
	}
}

func TestCollectorObserver(t *testing.T) {
	c := NewCollector()
	o := CollectorObserver{Collector: c}

	o.Log("ignored")
	o.OnProgress(search.Progress{Algorithm: search.AlgorithmSimulatedAnnealing, CurrentArea: 5000, BestArea: 5100, Temperature: 950})
	o.OnProgress(search.Progress{Algorithm: search.AlgorithmHillClimbing, CurrentArea: 4000, BestArea: 4000})

	names := c.GetMetricNames()
	want := []string{MetricBestArea, MetricCurrentArea, MetricOverlaps, MetricTemperature}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if got := c.Values(MetricTemperature, AlgorithmLabels(search.AlgorithmHillClimbing)); len(got) != 0 {
		t.Fatalf("hill climbing has no temperature, got %v", got)
	}

	RecordResult(c, &search.Result{Algorithm: search.AlgorithmHillClimbing, Area: 4000, Elapsed: time.Second})
	if got := c.Values(MetricElapsedSec, AlgorithmLabels(search.AlgorithmHillClimbing)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected elapsed series %v", got)
	}
}
