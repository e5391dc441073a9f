package simd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/metrics"
	"github.com/GoSim-25-26J-441/coverage-core/internal/store"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

func newTestHTTPServer() (*HTTPServer, *RunStore) {
	s := NewRunStore()
	return NewHTTPServer(s, NewRunExecutor(s)), s
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHTTPServerHealthz(t *testing.T) {
	srv, _ := newTestHTTPServer()
	rr := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHTTPServerCreateRun(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"defaults", map[string]any{"run_id": "run-default"}, http.StatusCreated},
		{"json experiment", map[string]any{"run_id": "run-json", "experiment": map[string]any{"sensor_count": 5, "seed": 7}}, http.StatusCreated},
		{"yaml experiment", map[string]any{"run_id": "run-yaml", "experiment_yaml": "sensor_count: 4\ncoverage_radius: 10\n"}, http.StatusCreated},
		{"unknown json field", map[string]any{"experiment": map[string]any{"sensors": 5}}, http.StatusBadRequest},
		{"both forms", map[string]any{"experiment": map[string]any{}, "experiment_yaml": "seed: 1"}, http.StatusBadRequest},
		{"invalid experiment", map[string]any{"experiment": map[string]any{"sensor_count": 0}}, http.StatusBadRequest},
		{"packing bound", map[string]any{"experiment": map[string]any{"sensor_count": 100, "coverage_radius": 30}}, http.StatusBadRequest},
		{"invalid run id", map[string]any{"run_id": "a/b"}, http.StatusBadRequest},
	}

	srv, s := newTestHTTPServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, srv.Handler(), http.MethodPost, "/v1/runs", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}

	rec, ok := s.Get("run-json")
	if !ok || rec.Experiment.SensorCount != 5 || rec.Experiment.CoverageRadius != 15 {
		t.Fatalf("expected JSON overrides on top of defaults, got %+v", rec)
	}
	rec, _ = s.Get("run-yaml")
	if rec.Experiment.SensorCount != 4 || rec.Experiment.CoverageRadius != 10 {
		t.Fatalf("expected YAML experiment, got %+v", rec.Experiment)
	}

	rr := doRequest(t, srv.Handler(), http.MethodPost, "/v1/runs", map[string]any{"run_id": "run-default"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate id, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed body, got %d", rr.Code)
	}
}

func TestHTTPServerListRuns(t *testing.T) {
	srv, s := newTestHTTPServer()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if _, err := s.Create(id, fastExperiment()); err != nil {
			t.Fatalf("Create error: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := s.SetStatus("run-2", models.RunStatusCancelled, ""); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	body := decodeBody(t, doRequest(t, srv.Handler(), http.MethodGet, "/v1/runs?limit=2", nil))
	runs := body["runs"].([]any)
	if len(runs) != 2 || runs[0].(map[string]any)["id"] != "run-3" {
		t.Fatalf("unexpected runs: %v", runs)
	}

	body = decodeBody(t, doRequest(t, srv.Handler(), http.MethodGet, "/v1/runs?status=CANCELLED", nil))
	runs = body["runs"].([]any)
	if len(runs) != 1 || runs[0].(map[string]any)["id"] != "run-2" {
		t.Fatalf("unexpected filtered runs: %v", runs)
	}

	rr := doRequest(t, srv.Handler(), http.MethodGet, "/v1/runs?status=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown status, got %d", rr.Code)
	}
	rr = doRequest(t, srv.Handler(), http.MethodDelete, "/v1/runs", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHTTPServerRunLifecycle(t *testing.T) {
	srv, s := newTestHTTPServer()
	h := srv.Handler()

	rr := doRequest(t, h, http.MethodPost, "/v1/runs", map[string]any{
		"run_id":     "run-1",
		"experiment": map[string]any{"seed": 42, "pacing": map[string]any{"step_delay": "0s", "algorithm_pause": "0s"}},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/runs/run-1/report", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected report to be unavailable before the run, got %d", rr.Code)
	}

	rr = doRequest(t, h, http.MethodPost, "/v1/runs/run-1:start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}
	srv.Executor.Wait()
	waitForStatus(t, s, "run-1", models.RunStatusCompleted)

	body := decodeBody(t, doRequest(t, h, http.MethodGet, "/v1/runs/run-1", nil))
	run := body["run"].(map[string]any)
	if run["status"] != string(models.RunStatusCompleted) || run["winner"] == nil {
		t.Fatalf("unexpected run: %v", run)
	}
	if body["report"] == nil || body["progress"] == nil {
		t.Fatalf("expected report and progress in run body")
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/runs/run-1/report?format=text", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "FINAL COMPARISON") {
		t.Fatalf("unexpected text report: %d %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, h, http.MethodGet, "/v1/runs/run-1/report?format=md", nil)
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected markdown report: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	rr = doRequest(t, h, http.MethodGet, "/v1/runs/run-1/report?format=xlsx", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Content-Disposition"), "run-1.xlsx") {
		t.Fatalf("unexpected xlsx report: %d %v", rr.Code, rr.Header())
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container for xlsx")
	}
	rr = doRequest(t, h, http.MethodGet, "/v1/runs/run-1/report?format=pdf", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown format, got %d", rr.Code)
	}

	body = decodeBody(t, doRequest(t, h, http.MethodGet, "/v1/runs/run-1/metrics", nil))
	if body["summary"] == nil {
		t.Fatalf("expected metrics summary")
	}
	body = decodeBody(t, doRequest(t, h, http.MethodGet, "/v1/runs/run-1/metrics/timeseries?metric=best_area&algorithm=Hill%20Climbing", nil))
	series := body["series"].([]any)
	if len(series) != 1 {
		t.Fatalf("expected one hill climbing series, got %d", len(series))
	}
	if points := series[0].(map[string]any)["points"].([]any); len(points) == 0 {
		t.Fatalf("expected best area points")
	}

	rr = doRequest(t, h, http.MethodPost, "/v1/runs/run-1:start", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected conflict restarting a completed run, got %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/v1/runs/run-1:stop", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected conflict stopping a completed run, got %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/v1/runs/run-1:pause", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected conflict pausing a finished run, got %d", rr.Code)
	}
}

func TestHTTPServerPacingEndpoints(t *testing.T) {
	srv, s := newTestHTTPServer()
	h := srv.Handler()
	if _, err := s.Create("run-1", slowExperiment()); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1:start", nil); rr.Code != http.StatusOK {
		t.Fatalf("start: %d", rr.Code)
	}

	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1:pause", nil); rr.Code != http.StatusOK {
		t.Fatalf("pause: %d %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, doRequest(t, h, http.MethodGet, "/v1/runs/run-1", nil))
	if body["paused"] != true {
		t.Fatalf("expected paused run, got %v", body["paused"])
	}
	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1:resume", nil); rr.Code != http.StatusOK {
		t.Fatalf("resume: %d", rr.Code)
	}
	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1/speed", map[string]any{"step_delay": "nope"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid delay, got %d", rr.Code)
	}
	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1/speed", map[string]any{"step_delay": "1ms"}); rr.Code != http.StatusOK {
		t.Fatalf("speed: %d %s", rr.Code, rr.Body.String())
	}
	if rr := doRequest(t, h, http.MethodGet, "/v1/runs/run-1:pause", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET pause, got %d", rr.Code)
	}

	if rr := doRequest(t, h, http.MethodPost, "/v1/runs/run-1:stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("stop: %d", rr.Code)
	}
	srv.Executor.Wait()
	rec, _ := s.Get("run-1")
	if rec.Run.Status != models.RunStatusCancelled {
		t.Fatalf("expected cancelled, got %s", rec.Run.Status)
	}
}

func TestHTTPServerNotFound(t *testing.T) {
	srv, _ := newTestHTTPServer()
	h := srv.Handler()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/runs/missing"},
		{http.MethodPost, "/v1/runs/missing:start"},
		{http.MethodPost, "/v1/runs/missing:stop"},
		{http.MethodPost, "/v1/runs/missing:pause"},
		{http.MethodGet, "/v1/runs/missing/report"},
		{http.MethodGet, "/v1/runs/missing/events"},
		{http.MethodGet, "/v1/runs/missing/metrics"},
	} {
		if rr := doRequest(t, h, tc.method, tc.path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, rr.Code)
		}
	}
	if rr := doRequest(t, h, http.MethodGet, "/v1/runs/", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty id, got %d", rr.Code)
	}
}

func TestHTTPServerEventsStream(t *testing.T) {
	srv, s := newTestHTTPServer()
	if _, err := s.Create("run-1", fastExperiment()); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if _, err := srv.Executor.Start("run-1"); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/runs/run-1/events?interval_ms=20")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %s", ct)
	}

	// The stream ends by itself once the run is terminal
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	stream := buf.String()
	for _, want := range []string{"event: status_change", "event: log", "event: complete", `"status":"completed"`} {
		if !strings.Contains(stream, want) {
			t.Fatalf("expected %q in stream:\n%s", want, stream)
		}
	}
	srv.Executor.Wait()
}

func TestHTTPServerMetricsAndLeaderboard(t *testing.T) {
	db, err := store.Open(t.TempDir(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	s := NewRunStore().WithPersistence(db)
	prom := metrics.NewPrometheus("coverage")
	exec := NewRunExecutor(s).WithPrometheus(prom)
	srv := NewHTTPServer(s, exec).WithMetrics(prom.Handler()).WithLeaderboard(db)
	h := srv.Handler()

	if rr := doRequest(t, h, http.MethodPost, "/v1/runs", map[string]any{
		"run_id": "run-1",
		"start":  true,
		"experiment": map[string]any{"pacing": map[string]any{"algorithm_pause": "0s"}},
	}); rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	exec.Wait()
	waitForStatus(t, s, "run-1", models.RunStatusCompleted)

	rr := doRequest(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rr.Body.String(), "coverage_searches_total") {
		t.Fatalf("expected search counters in /metrics")
	}

	body := decodeBody(t, doRequest(t, h, http.MethodGet, "/v1/results/best?limit=1", nil))
	results := body["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["run_id"] != "run-1" {
		t.Fatalf("unexpected leaderboard: %v", results)
	}

	plain, _ := newTestHTTPServer()
	if rr := doRequest(t, plain.Handler(), http.MethodGet, "/v1/results/best", nil); rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a store, got %d", rr.Code)
	}
}
