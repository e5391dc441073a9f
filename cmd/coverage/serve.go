package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/coverage-core/internal/metrics"
	"github.com/GoSim-25-26J-441/coverage-core/internal/simd"
	"github.com/GoSim-25-26J-441/coverage-core/internal/store"
	"github.com/GoSim-25-26J-441/coverage-core/internal/telemetry"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
)

const restoreLimit = 1000

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run daemon (HTTP and gRPC)",
		Long: `Serve starts the run daemon. Runs are created, started and stopped over the
HTTP JSON API or the gRPC CoverageService, and finished reports are kept in a
SQLite database.

Settings are read from coverage.yaml in the working directory or the xdg
config directory, then from COVERAGE_* environment variables
(for example COVERAGE_HTTP_ADDR=:9090).`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Settings file (default: coverage.yaml)")
	cmd.Flags().String("http-addr", "", "HTTP listen address, overrides settings")
	cmd.Flags().String("grpc-addr", "", "gRPC listen address, overrides settings")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		settings.Log.Level = "debug"
	}
	logger.SetDefault(logger.NewWithConfig(logger.Config{
		Level:      settings.Log.Level,
		Format:     settings.Log.Format,
		Output:     settings.Log.Output,
		FilePath:   settings.Log.FilePath,
		MaxSize:    settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAge:     settings.Log.MaxAge,
		Compress:   settings.Log.Compress,
	}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, settings)
}

func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	var opts []config.LoaderOption
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("settings file: %w", err)
		}
		opts = append(opts, config.WithConfigPaths(path))
	}
	settings, err := config.NewLoader(opts...).Load()
	if err != nil {
		return nil, err
	}
	if addr, _ := cmd.Flags().GetString("http-addr"); addr != "" {
		settings.HTTP.Addr = addr
	}
	if addr, _ := cmd.Flags().GetString("grpc-addr"); addr != "" {
		settings.GRPC.Addr = addr
	}
	return settings, nil
}

// daemon holds the wired components of a running server
type daemon struct {
	store    *simd.RunStore
	executor *simd.RunExecutor
	notifier *simd.Notifier
	db       *store.ReportDB
	http     *simd.HTTPServer
	grpc     *grpc.Server
	tracing  *telemetry.Provider
}

func newDaemon(ctx context.Context, settings *config.Settings) (*daemon, error) {
	tracing, err := telemetry.Init(ctx, telemetry.ConfigFromSettings(settings.Telemetry, getVersion()))
	if err != nil {
		return nil, err
	}

	d := &daemon{
		store:    simd.NewRunStore(),
		notifier: simd.NewNotifierFromSettings(settings.Notify),
		tracing:  tracing,
	}

	if settings.Store.Enabled {
		d.db, err = store.Open(settings.Store.Dir, store.DefaultOptions())
		if err != nil {
			_ = tracing.Shutdown(ctx)
			return nil, err
		}
		d.store.WithPersistence(d.db)
		restored, err := d.store.Restore(ctx, restoreLimit)
		if err != nil {
			logger.Warn("failed to restore runs", "error", err)
		}
		logger.Info("results database opened", "path", d.db.Path(), "restored_runs", restored)
	}

	d.executor = simd.NewRunExecutor(d.store).WithNotifier(d.notifier)
	d.http = simd.NewHTTPServer(d.store, d.executor)
	if settings.Metrics.Enabled {
		prom := metrics.NewPrometheus(settings.Metrics.Namespace)
		d.executor.WithPrometheus(prom)
		d.http.WithMetrics(prom.Handler())
	}
	if d.db != nil {
		d.http.WithLeaderboard(d.db)
	}

	d.grpc = simd.NewGRPCServer(logger.Default, telemetry.UnaryServerInterceptor())
	simd.RegisterCoverageServiceServer(d.grpc, simd.NewCoverageGRPCServer(d.store, d.executor))
	return d, nil
}

// stopRuns cancels active runs so event streams end before the servers stop
func (d *daemon) stopRuns(ctx context.Context) {
	if err := d.executor.Shutdown(ctx); err != nil {
		logger.Warn("runs still active at shutdown", "error", err)
	}
	d.notifier.Wait()
}

// close releases what newDaemon opened, after the servers have stopped
func (d *daemon) close(ctx context.Context) {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Error("failed to close results database", "error", err)
		}
	}
	if err := d.tracing.Shutdown(ctx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}
}

func serve(ctx context.Context, settings *config.Settings) error {
	d, err := newDaemon(ctx, settings)
	if err != nil {
		return err
	}

	var httpSrv *http.Server
	var grpcLis net.Listener
	if settings.GRPC.Addr != "" {
		if grpcLis, err = net.Listen("tcp", settings.GRPC.Addr); err != nil {
			d.close(context.Background())
			return fmt.Errorf("failed to listen for gRPC on %s: %w", settings.GRPC.Addr, err)
		}
	}
	if settings.HTTP.Addr != "" {
		httpSrv = &http.Server{
			Addr:              settings.HTTP.Addr,
			Handler:           d.http.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if grpcLis != nil {
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", settings.GRPC.Addr)
			return d.grpc.Serve(grpcLis)
		})
	}
	if httpSrv != nil {
		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", settings.HTTP.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")

		timeout := settings.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		d.stopRuns(shutdownCtx)
		d.grpc.GracefulStop()
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown error", "error", err)
			}
		}
		d.close(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
