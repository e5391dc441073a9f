package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/coverage-core/internal/simd"
)

type remoteCall func(ctx context.Context, c *simd.CoverageClient, cmd *cobra.Command, args []string) (*structpb.Struct, error)

// NewRemoteCmd creates the remote command group, a gRPC client of 'coverage serve'.
func NewRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage runs on a coverage daemon over gRPC",
		Long: `Remote talks to a running 'coverage serve' daemon.

Examples:
  coverage remote create --config experiment.yaml --start
  coverage remote get 5f0c...
  coverage remote report 5f0c... --format markdown
  coverage remote list --status completed`,
	}

	cmd.PersistentFlags().String("addr", "localhost:50051", "Daemon gRPC address")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-call timeout")
	cmd.PersistentFlags().Int("retries", 3, "Retries for unavailable daemons")

	create := remoteCommand("create", "Create a run", cobra.NoArgs,
		func(ctx context.Context, c *simd.CoverageClient, cmd *cobra.Command, _ []string) (*structpb.Struct, error) {
			var yamlText string
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, fmt.Errorf("failed to read experiment file: %w", err)
				}
				yamlText = string(data)
			}
			id, _ := cmd.Flags().GetString("id")
			start, _ := cmd.Flags().GetBool("start")
			return c.CreateRun(ctx, id, yamlText, start)
		})
	create.Flags().StringP("config", "c", "", "Experiment YAML file (default: built-in experiment)")
	create.Flags().String("id", "", "Run ID (default: generated)")
	create.Flags().Bool("start", false, "Start the run immediately")

	list := remoteCommand("list", "List runs", cobra.NoArgs,
		func(ctx context.Context, c *simd.CoverageClient, cmd *cobra.Command, _ []string) (*structpb.Struct, error) {
			limit, _ := cmd.Flags().GetInt("limit")
			status, _ := cmd.Flags().GetString("status")
			return c.ListRuns(ctx, limit, status)
		})
	list.Flags().Int("limit", 50, "Maximum number of runs")
	list.Flags().String("status", "", "Only runs with this status")

	report := remoteCommand("report RUN_ID", "Print a finished run's report", cobra.ExactArgs(1),
		func(ctx context.Context, c *simd.CoverageClient, cmd *cobra.Command, args []string) (*structpb.Struct, error) {
			format, _ := cmd.Flags().GetString("format")
			return c.GetReport(ctx, args[0], format)
		})
	report.Flags().StringP("format", "f", "text", "Report format: text, markdown, json")

	cmd.AddCommand(
		create,
		remoteCommand("start RUN_ID", "Start a pending run", cobra.ExactArgs(1),
			func(ctx context.Context, c *simd.CoverageClient, _ *cobra.Command, args []string) (*structpb.Struct, error) {
				return c.StartRun(ctx, args[0])
			}),
		remoteCommand("stop RUN_ID", "Cancel a run", cobra.ExactArgs(1),
			func(ctx context.Context, c *simd.CoverageClient, _ *cobra.Command, args []string) (*structpb.Struct, error) {
				return c.StopRun(ctx, args[0])
			}),
		remoteCommand("get RUN_ID", "Show a run and its progress", cobra.ExactArgs(1),
			func(ctx context.Context, c *simd.CoverageClient, _ *cobra.Command, args []string) (*structpb.Struct, error) {
				return c.GetRun(ctx, args[0])
			}),
		list,
		report,
	)
	return cmd
}

func remoteCommand(use, short string, args cobra.PositionalArgs, call remoteCall) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			retries, _ := cmd.Flags().GetInt("retries")

			conn, err := simd.Dial(simd.ClientConfig{Address: addr, MaxRetries: retries})
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := call(ctx, simd.NewCoverageClient(conn), cmd, args)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}
}

// printResponse prints rendered report content as-is and everything else as JSON
func printResponse(w io.Writer, resp *structpb.Struct) error {
	if content, ok := resp.GetFields()["content"]; ok {
		_, err := fmt.Fprint(w, content.GetStringValue())
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
