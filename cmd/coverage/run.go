package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/coverage-core/internal/report"
	"github.com/GoSim-25-26J-441/coverage-core/internal/search"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

const defaultInteractiveDelay = 500 * time.Millisecond

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both searches once and print the comparison",
		Long: `Run executes hill climbing, then simulated annealing, on the same coverage
model and prints a comparison report. Progress is logged to stderr.

Examples:
  # Default experiment, half a second per step
  coverage run

  # Experiment file, no pacing, markdown report written to a file
  coverage run -c experiment.yaml --delay 0 -o results/report.md

  # Reproducible run with a workbook report
  coverage run --seed 7 --delay 0 -o report.xlsx`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Experiment YAML file (default: built-in experiment)")
	cmd.Flags().Int64P("seed", "s", 0, "Random seed, overrides the experiment file")
	cmd.Flags().DurationP("delay", "d", defaultInteractiveDelay,
		"Delay between search steps; applied when no experiment file is given or the flag is set")
	cmd.Flags().Duration("pause", 0, "Pause between the two searches, overrides the experiment file")
	cmd.Flags().StringP("format", "f", "", "Report format: text, markdown, json, xlsx (default: from --output extension, else text)")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")

	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	exp, err := experimentFromFlags(cmd)
	if err != nil {
		return err
	}
	format, output, err := reportTarget(cmd)
	if err != nil {
		return err
	}

	log := logger.NewText(logLevel(cmd), cmd.ErrOrStderr())
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := utils.GenerateRunID()
	observer := search.NewLogObserver(log.With("run_id", runID), search.NewPacer(0))
	runner, err := search.NewExperimentRunner(exp, observer)
	if err != nil {
		return fmt.Errorf("invalid experiment: %w", err)
	}

	result, runErr := runner.Run(ctx)
	if result == nil {
		if runErr == nil {
			runErr = errors.New("run produced no results")
		}
		return runErr
	}

	if err := writeReport(cmd.OutOrStdout(), output, format, report.NewDocument(runID, exp, result)); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return errors.New("run interrupted, partial report written")
	}
	return runErr
}

func experimentFromFlags(cmd *cobra.Command) (*config.Experiment, error) {
	path, _ := cmd.Flags().GetString("config")
	exp := config.DefaultExperiment()
	if path != "" {
		loaded, err := config.LoadExperiment(path)
		if err != nil {
			return nil, err
		}
		exp = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		exp.Seed, _ = flags.GetInt64("seed")
	}
	if path == "" || flags.Changed("delay") {
		delay, _ := flags.GetDuration("delay")
		if delay < 0 {
			return nil, fmt.Errorf("--delay cannot be negative, got %s", delay)
		}
		exp.Pacing.StepDelay = delay.String()
	}
	if flags.Changed("pause") {
		pause, _ := flags.GetDuration("pause")
		if pause < 0 {
			return nil, fmt.Errorf("--pause cannot be negative, got %s", pause)
		}
		exp.Pacing.AlgorithmPause = pause.String()
	}

	if err := config.ValidateExperiment(exp); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	return exp, nil
}

// reportTarget resolves the format, falling back to the output file extension
func reportTarget(cmd *cobra.Command) (report.Format, string, error) {
	name, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if name == "" && output != "" {
		name = filepath.Ext(output)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		return "", "", err
	}
	if format == report.FormatXLSX && output == "" {
		return "", "", errors.New("xlsx reports need --output")
	}
	return format, output, nil
}

func writeReport(stdout io.Writer, output string, format report.Format, doc *report.Document) error {
	if output == "" {
		return emitReport(stdout, format, doc)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(output))
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := writeAndClose(f, format, doc); err != nil {
		return err
	}
	logger.Info("report written", "path", output, "format", string(format))
	return nil
}

// writeAndClose closes w on every path and reports a failed close
func writeAndClose(w io.WriteCloser, format report.Format, doc *report.Document) error {
	if err := emitReport(w, format, doc); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}

func emitReport(dest io.Writer, format report.Format, doc *report.Document) error {
	writer, err := report.NewWriter(format, dest)
	if err != nil {
		return err
	}
	if _, err := writer.Write(doc); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
