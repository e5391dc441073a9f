package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(config.TelemetrySettings{
		Enabled:     true,
		Endpoint:    "collector:4317",
		ServiceName: "coverage",
		SampleRate:  0.5,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.InDelta(t, 0.5, cfg.SampleRate, 1e-9)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, Sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
}

func withExporter(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	prev := otel.GetTracerProvider()
	exporter := tracetest.NewInMemoryExporter()
	p, err := Init(context.Background(), Config{
		Enabled:     true,
		ServiceName: "coverage-test",
		SampleRate:  1,
		Exporter:    exporter,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return p, exporter
}

func TestInitExportsSpans(t *testing.T) {
	p, exporter := withExporter(t)
	assert.True(t, p.Enabled())

	ctx, span := p.Tracer().Start(context.Background(), "search.run")
	SetError(ctx, errors.New("boom"))
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "search.run", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestUnaryServerInterceptor(t *testing.T) {
	p, exporter := withExporter(t)
	interceptor := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/coverage.v1.CoverageService/GetRun"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(grpccodes.NotFound, "run not found")
	})
	require.Error(t, err)

	resp, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	require.NoError(t, p.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)

	var kinds []string
	for _, s := range spans {
		kinds = append(kinds, s.SpanKind.String())
	}
	assert.Equal(t, []string{"server", "server"}, kinds)
}

var _ sdktrace.SpanExporter = (*tracetest.InMemoryExporter)(nil)
