package simd

import (
	"context"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ClientConfig configures a CoverageService client connection
type ClientConfig struct {
	Address      string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Dial creates a client connection that retries unavailable servers
func Dial(cfg ClientConfig, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	opts := []grpc_retry.CallOption{
		grpc_retry.WithBackoff(grpc_retry.BackoffLinear(cfg.RetryBackoff)),
		grpc_retry.WithCodes(codes.Unavailable, codes.Aborted),
		grpc_retry.WithMax(uint(max(cfg.MaxRetries, 0))),
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(grpc_retry.UnaryClientInterceptor(opts...)),
	}, extra...)
	return grpc.NewClient(cfg.Address, dialOpts...)
}

// CoverageClient calls CoverageService
type CoverageClient struct {
	cc grpc.ClientConnInterface
}

func NewCoverageClient(cc grpc.ClientConnInterface) *CoverageClient {
	return &CoverageClient{cc: cc}
}

func (c *CoverageClient) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRun creates a run from an experiment YAML document; empty means defaults
func (c *CoverageClient) CreateRun(ctx context.Context, runID, experimentYAML string, start bool) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateRun", map[string]any{
		"run_id":          runID,
		"experiment_yaml": experimentYAML,
		"start":           start,
	})
}

func (c *CoverageClient) StartRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartRun", map[string]any{"run_id": runID})
}

func (c *CoverageClient) StopRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopRun", map[string]any{"run_id": runID})
}

func (c *CoverageClient) GetRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", map[string]any{"run_id": runID})
}

func (c *CoverageClient) ListRuns(ctx context.Context, limit int, status string) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListRuns", map[string]any{"limit": limit, "status": status})
}

func (c *CoverageClient) GetReport(ctx context.Context, runID, format string) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetReport", map[string]any{"run_id": runID, "format": format})
}
