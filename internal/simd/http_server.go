package simd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/internal/report"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/internal/store"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// maxRequestBody bounds JSON request bodies
const maxRequestBody = 1 << 20

// Leaderboard ranks stored results across runs. *store.ReportDB implements it.
type Leaderboard interface {
	BestResults(ctx context.Context, algorithm string, limit int) ([]store.ResultRow, error)
}

type HTTPServer struct {
	mux         *http.ServeMux
	store       *RunStore
	Executor    *RunExecutor
	leaderboard Leaderboard
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)
	s.mux.HandleFunc("/v1/results/best", s.handleBestResults)

	return s
}

// WithMetrics serves h on /metrics
func (s *HTTPServer) WithMetrics(h http.Handler) *HTTPServer {
	s.mux.Handle("/metrics", h)
	return s
}

// WithLeaderboard enables /v1/results/best
func (s *HTTPServer) WithLeaderboard(l Leaderboard) *HTTPServer {
	s.leaderboard = l
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// runAction pairs a path suffix with its handler
type runAction struct {
	suffix  string
	method  string
	handler func(w http.ResponseWriter, r *http.Request, runID string)
}

// handleRunByID handles /v1/runs/{id}, /v1/runs/{id}:start and the other
// per-run endpoints.
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	actions := []runAction{
		{":start", http.MethodPost, s.handleStartRun},
		{":stop", http.MethodPost, s.handleStopRun},
		{":pause", http.MethodPost, s.handlePauseRun},
		{":resume", http.MethodPost, s.handleResumeRun},
		{"/speed", http.MethodPost, s.handleSetSpeed},
		{"/report", http.MethodGet, s.handleGetReport},
		{"/events", http.MethodGet, s.handleEvents},
		{"/metrics/timeseries", http.MethodGet, s.handleTimeSeries},
		{"/metrics", http.MethodGet, s.handleRunMetrics},
	}
	for _, a := range actions {
		if !strings.HasSuffix(path, a.suffix) {
			continue
		}
		if r.Method != a.method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a.handler(w, r, strings.TrimSuffix(path, a.suffix))
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleGetRun(w, r, path)
}

// createRunRequest accepts the experiment as JSON or as a YAML document.
// Omitted JSON fields keep their default values.
type createRunRequest struct {
	RunID          string          `json:"run_id,omitempty"`
	Experiment     json.RawMessage `json:"experiment,omitempty"`
	ExperimentYAML string          `json:"experiment_yaml,omitempty"`
	Start          bool            `json:"start,omitempty"`
}

func decodeExperiment(req *createRunRequest) (*config.Experiment, error) {
	switch {
	case req.ExperimentYAML != "" && len(req.Experiment) > 0:
		return nil, errors.New("set either experiment or experiment_yaml, not both")
	case req.ExperimentYAML != "":
		return config.ParseExperimentYAMLString(req.ExperimentYAML)
	case len(req.Experiment) > 0:
		exp := config.DefaultExperiment()
		dec := json.NewDecoder(bytes.NewReader(req.Experiment))
		dec.DisallowUnknownFields()
		if err := dec.Decode(exp); err != nil {
			return nil, err
		}
		return exp, nil
	default:
		return config.DefaultExperiment(), nil
	}
}

// handleCreateRun handles POST /v1/runs
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	exp, err := decodeExperiment(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid experiment: "+err.Error())
		return
	}

	rec, err := s.store.Create(req.RunID, exp)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	logger.Info("run created (HTTP)", "run_id", rec.Run.ID)

	if req.Start {
		if rec, err = s.Executor.Start(rec.Run.ID); err != nil {
			s.writeRunError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run": runJSON(rec),
	})
}

// handleListRuns handles GET /v1/runs?limit=&offset=&status=
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	if limit > 1000 {
		limit = 1000
	}
	offset := queryInt(q.Get("offset"), 0)

	var status models.RunStatus
	if raw := q.Get("status"); raw != "" {
		parsed, ok := models.ParseRunStatus(strings.ToLower(raw))
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
		status = parsed
	}

	recs := s.store.List(limit, offset, status)
	runs := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, runJSON(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	body := map[string]any{
		"run":        runJSON(rec),
		"experiment": rec.Experiment,
		"progress":   rec.Progress,
	}
	if running, paused := s.Executor.Paced(runID); running {
		body["paused"] = paused
	}
	if rec.Report != nil {
		body["report"] = rec.Report
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *HTTPServer) handleStartRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, err := s.Executor.Start(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": runJSON(rec)})
}

func (s *HTTPServer) handleStopRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	logger.Info("run cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{"run": runJSON(rec)})
}

func (s *HTTPServer) handlePauseRun(w http.ResponseWriter, _ *http.Request, runID string) {
	if err := s.Executor.Pause(runID); err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "paused": true})
}

func (s *HTTPServer) handleResumeRun(w http.ResponseWriter, _ *http.Request, runID string) {
	if err := s.Executor.Resume(runID); err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "paused": false})
}

// handleSetSpeed handles POST /v1/runs/{id}/speed {"step_delay": "250ms"}
func (s *HTTPServer) handleSetSpeed(w http.ResponseWriter, r *http.Request, runID string) {
	var req struct {
		StepDelay string `json:"step_delay"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d, err := time.ParseDuration(req.StepDelay)
	if err != nil || d < 0 {
		s.writeError(w, http.StatusBadRequest, "step_delay must be a non-negative duration")
		return
	}
	if err := s.Executor.SetDelay(runID, d); err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "step_delay": d.String()})
}

// handleGetReport handles GET /v1/runs/{id}/report?format=text|markdown|json|xlsx
func (s *HTTPServer) handleGetReport(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Report == nil {
		s.writeError(w, http.StatusConflict, "report not available")
		return
	}

	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	writer, err := report.NewWriter(format, &buf)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := writer.Write(report.NewDocument(runID, rec.Experiment, rec.Report)); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to render report: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	if format == report.FormatXLSX {
		w.Header().Set("Content-Disposition", `attachment; filename="`+runID+`.xlsx"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Error("failed to write report", "run_id", runID, "error", err)
	}
}

// handleRunMetrics handles GET /v1/runs/{id}/metrics: aggregations of the
// progress series of a run.
func (s *HTTPServer) handleRunMetrics(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Collector == nil {
		s.writeError(w, http.StatusConflict, "metrics not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"summary": rec.Collector.GetSummary(),
	})
}

// handleTimeSeries handles GET /v1/runs/{id}/metrics/timeseries?metric=&algorithm=
func (s *HTTPServer) handleTimeSeries(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Collector == nil {
		s.writeError(w, http.StatusConflict, "metrics not available")
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"run_id":  runID,
			"metrics": rec.Collector.GetMetricNames(),
		})
		return
	}

	var labels map[string]string
	if algorithm := r.URL.Query().Get("algorithm"); algorithm != "" {
		labels = map[string]string{"algorithm": algorithm}
	}

	series := make([]map[string]any, 0)
	for _, combo := range rec.Collector.GetLabelsForMetric(metric) {
		if labels != nil && combo["algorithm"] != labels["algorithm"] {
			continue
		}
		points := rec.Collector.GetTimeSeries(metric, combo)
		values := make([]map[string]any, 0, len(points))
		for _, p := range points {
			values = append(values, map[string]any{
				"timestamp": p.Timestamp.Format(time.RFC3339Nano),
				"value":     p.Value,
			})
		}
		series = append(series, map[string]any{
			"labels": combo,
			"points": values,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"metric": metric,
		"series": series,
	})
}

// handleBestResults handles GET /v1/results/best?algorithm=&limit=
func (s *HTTPServer) handleBestResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.leaderboard == nil {
		s.writeError(w, http.StatusNotImplemented, "result store is disabled")
		return
	}
	limit := queryInt(r.URL.Query().Get("limit"), 10)
	rows, err := s.leaderboard.BestResults(r.Context(), r.URL.Query().Get("algorithm"), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		results = append(results, map[string]any{
			"run_id":          row.RunID,
			"algorithm":       row.Algorithm,
			"area":            row.Area,
			"elapsed_seconds": row.Elapsed.Seconds(),
			"iterations":      row.Iterations,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleEvents handles GET /v1/runs/{id}/events (SSE). It streams status
// changes, progress snapshots and log lines until the run is terminal or
// the client disconnects.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	interval := 500 * time.Millisecond
	if ms := queryInt(r.URL.Query().Get("interval_ms"), 0); ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	previousStatus := rec.Run.Status
	var progressSeq, logSeq int64
	s.sendSSEEvent(w, "status_change", map[string]any{"status": rec.Run.Status})

	// emit sends what changed since the last tick; it reports whether the
	// stream is finished.
	emit := func(rec *RunRecord) bool {
		for _, line := range s.store.LogsSince(runID, logSeq) {
			s.sendSSEEvent(w, "log", map[string]any{
				"at":      line.At.Format(time.RFC3339Nano),
				"message": line.Message,
			})
			logSeq = line.Seq
		}
		if rec.ProgressSeq != progressSeq {
			for _, algorithm := range []string{search.AlgorithmHillClimbing, search.AlgorithmSimulatedAnnealing} {
				if p, ok := rec.Progress[algorithm]; ok {
					s.sendSSEEvent(w, "progress", p)
				}
			}
			progressSeq = rec.ProgressSeq
		}
		if rec.Run.Status != previousStatus {
			s.sendSSEEvent(w, "status_change", map[string]any{"status": rec.Run.Status})
			previousStatus = rec.Run.Status
		}
		if rec.Run.Status.IsTerminal() {
			complete := map[string]any{"status": rec.Run.Status}
			if rec.Report != nil && rec.Report.Winner != nil {
				complete["winner"] = rec.Report.Winner.Algorithm
				complete["best_area"] = rec.Report.Winner.Area
				complete["improvement_percent"] = rec.Report.Improvement
			}
			s.sendSSEEvent(w, "complete", complete)
			return true
		}
		return false
	}

	flush := func() {
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	if emit(rec) {
		flush()
		return
	}
	flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, ok := s.store.Get(runID)
			if !ok {
				s.sendSSEEvent(w, "error", map[string]any{"error": "run not found"})
				flush()
				return
			}
			done := emit(rec)
			flush()
			if done {
				return
			}
		}
	}
}

// sendSSEEvent writes one Server-Sent Event. Streams are best effort, so
// errors are logged only.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + eventType + "\ndata: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event", "error", err)
	}
}

func (s *HTTPServer) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal), errors.Is(err, ErrRunNotRunning), errors.Is(err, ErrRunStatusChanged):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRunID), errors.Is(err, ErrInvalidExperiment):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func runJSON(rec *RunRecord) map[string]any {
	out := map[string]any{
		"id":          rec.Run.ID,
		"status":      rec.Run.Status,
		"created_at":  rec.Run.CreatedAt.Format(time.RFC3339Nano),
		"duration_ms": rec.Run.Duration().Milliseconds(),
	}
	if !rec.Run.StartedAt.IsZero() {
		out["started_at"] = rec.Run.StartedAt.Format(time.RFC3339Nano)
	}
	if !rec.Run.EndedAt.IsZero() {
		out["ended_at"] = rec.Run.EndedAt.Format(time.RFC3339Nano)
	}
	if rec.Run.Error != "" {
		out["error"] = rec.Run.Error
	}
	if rec.Report != nil && rec.Report.Winner != nil {
		out["winner"] = rec.Report.Winner.Algorithm
		out["best_area"] = rec.Report.Winner.Area
	}
	return out
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
