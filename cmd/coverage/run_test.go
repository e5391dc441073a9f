package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/coverage-core/internal/report"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
)

const smallExperiment = `domain_size: 60
sensor_count: 4
coverage_radius: 8
seed: 42
hill_climbing:
  max_restarts: 3
annealing:
  initial_temperature: 10
  cooling_rate: 0.9
  min_temperature: 1
  perturbation_range: 10
  log_every: 50
pacing:
  step_delay: 0s
  algorithm_pause: 0s
`

func writeExperiment(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := os.WriteFile(path, []byte(smallExperiment), 0o600); err != nil {
		t.Fatalf("failed to write experiment: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCmdTextReport(t *testing.T) {
	out, err := execute(t, "run", "-c", writeExperiment(t))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"FINAL COMPARISON", "Hill Climbing", "Simulated Annealing", "Domain: 60x60"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunCmdWritesReportFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		output string
		check  func(t *testing.T, data []byte)
	}{
		{"markdown", filepath.Join(dir, "nested", "report.md"), func(t *testing.T, data []byte) {
			if !strings.Contains(string(data), "|") {
				t.Errorf("expected a markdown table, got:\n%s", data)
			}
		}},
		{"json", filepath.Join(dir, "report.json"), func(t *testing.T, data []byte) {
			if !strings.Contains(string(data), `"winner"`) {
				t.Errorf("expected a winner in json report, got:\n%s", data)
			}
		}},
		{"xlsx", filepath.Join(dir, "report.xlsx"), func(t *testing.T, data []byte) {
			if !bytes.HasPrefix(data, []byte("PK")) {
				t.Errorf("expected a zip workbook")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "run", "-c", writeExperiment(t), "-o", tt.output)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if out != "" {
				t.Errorf("expected nothing on stdout, got %q", out)
			}
			data, err := os.ReadFile(tt.output)
			if err != nil {
				t.Fatalf("report not written: %v", err)
			}
			tt.check(t, data)
		})
	}
}

// closeFailer buffers writes and fails on Close, like a file whose
// deferred flush hits a full disk
type closeFailer struct {
	bytes.Buffer
	closed int
	err    error
}

func (c *closeFailer) Close() error {
	c.closed++
	return c.err
}

func TestWriteAndCloseReportsCloseError(t *testing.T) {
	doc := report.NewDocument("run-1", nil, &search.ComparisonReport{})
	diskFull := errors.New("no space left on device")

	w := &closeFailer{err: diskFull}
	err := writeAndClose(w, report.FormatJSON, doc)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected close error, got %v", err)
	}
	if w.closed != 1 || w.Len() == 0 {
		t.Fatalf("expected one close after writing, got closed=%d len=%d", w.closed, w.Len())
	}

	w = &closeFailer{}
	if err := writeAndClose(w, report.FormatJSON, report.NewDocument("run-1", nil, nil)); err == nil {
		t.Fatalf("expected write error for a document without a report")
	}
	if w.closed != 1 {
		t.Fatalf("expected close after a failed write, got %d", w.closed)
	}

	w = &closeFailer{}
	if err := writeAndClose(w, report.FormatJSON, doc); err != nil {
		t.Fatalf("writeAndClose error: %v", err)
	}
}

func TestRunCmdRejectsBadInput(t *testing.T) {
	path := writeExperiment(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing experiment file", []string{"run", "-c", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"unknown format", []string{"run", "-c", path, "-f", "pdf"}},
		{"xlsx to stdout", []string{"run", "-c", path, "-f", "xlsx"}},
		{"negative delay", []string{"run", "-c", path, "--delay", "-1s"}},
		{"positional args", []string{"run", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("expected an error for %v", tt.args)
			}
		})
	}
}

func TestExperimentFromFlags(t *testing.T) {
	cmd := NewRunCmd()
	if err := cmd.ParseFlags([]string{"--seed", "7", "--pause", "1s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	exp, err := experimentFromFlags(cmd)
	if err != nil {
		t.Fatalf("experimentFromFlags failed: %v", err)
	}
	if exp.Seed != 7 {
		t.Errorf("expected seed 7, got %d", exp.Seed)
	}
	if exp.Pacing.StepDelay != defaultInteractiveDelay.String() {
		t.Errorf("expected interactive delay without a file, got %q", exp.Pacing.StepDelay)
	}
	if exp.Pacing.AlgorithmPause != "1s" {
		t.Errorf("expected pause override, got %q", exp.Pacing.AlgorithmPause)
	}

	cmd = NewRunCmd()
	if err := cmd.ParseFlags([]string{"-c", writeExperiment(t)}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	exp, err = experimentFromFlags(cmd)
	if err != nil {
		t.Fatalf("experimentFromFlags failed: %v", err)
	}
	if exp.Pacing.StepDelay != "0s" || exp.Seed != 42 {
		t.Errorf("expected file values to be kept, got delay %q seed %d", exp.Pacing.StepDelay, exp.Seed)
	}
}

func TestReportTarget(t *testing.T) {
	tests := []struct {
		args []string
		want report.Format
	}{
		{nil, report.FormatText},
		{[]string{"-o", "out.md"}, report.FormatMarkdown},
		{[]string{"-o", "out.txt", "-f", "json"}, report.FormatJSON},
		{[]string{"-o", "out.xlsx"}, report.FormatXLSX},
	}
	for _, tt := range tests {
		cmd := NewRunCmd()
		if err := cmd.ParseFlags(tt.args); err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		got, _, err := reportTarget(cmd)
		if err != nil {
			t.Fatalf("%v: unexpected error %v", tt.args, err)
		}
		if got != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.args, tt.want, got)
		}
	}
}
