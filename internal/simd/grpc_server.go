package simd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/coverage-core/internal/report"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "coverage.v1.CoverageService"

// CoverageServiceServer is the gRPC service. Requests and responses are
// google.protobuf.Struct documents.
type CoverageServiceServer interface {
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CoverageServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CoverageServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CoverageServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// CoverageServiceDesc describes CoverageService for grpc.Server.RegisterService
var CoverageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoverageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateRun", CoverageServiceServer.CreateRun),
		unaryHandler("StartRun", CoverageServiceServer.StartRun),
		unaryHandler("StopRun", CoverageServiceServer.StopRun),
		unaryHandler("GetRun", CoverageServiceServer.GetRun),
		unaryHandler("ListRuns", CoverageServiceServer.ListRuns),
		unaryHandler("GetReport", CoverageServiceServer.GetReport),
	},
	Metadata: "coverage/v1/coverage.proto",
}

// RegisterCoverageServiceServer registers srv on s
func RegisterCoverageServiceServer(s grpc.ServiceRegistrar, srv CoverageServiceServer) {
	s.RegisterService(&CoverageServiceDesc, srv)
}

// NewGRPCServer creates a gRPC server with panic recovery and request
// logging, plus any extra interceptors (tracing).
func NewGRPCServer(log *slog.Logger, extra ...grpc.UnaryServerInterceptor) *grpc.Server {
	if log == nil {
		log = logger.Default
	}
	interceptors := []grpc.UnaryServerInterceptor{
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(func(p any) error {
			log.Error("gRPC handler panicked", "panic", fmt.Sprint(p))
			return status.Errorf(codes.Internal, "internal error")
		})),
		logging.UnaryServerInterceptor(interceptorLogger(log),
			logging.WithLogOnEvents(logging.FinishCall)),
	}
	interceptors = append(interceptors, extra...)
	return grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
}

func interceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// CoverageGRPCServer implements CoverageServiceServer on a RunStore backend.
type CoverageGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
}

func NewCoverageGRPCServer(store *RunStore, executor *RunExecutor) *CoverageGRPCServer {
	return &CoverageGRPCServer{
		store:    store,
		Executor: executor,
	}
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[key].GetStringValue()
}

func requireRunID(req *structpb.Struct) (string, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return "", status.Error(codes.InvalidArgument, "run_id is required")
	}
	return runID, nil
}

// toStruct converts a JSON-serializable value to a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func runResponse(rec *RunRecord) (*structpb.Struct, error) {
	return toStruct(map[string]any{"run": runJSON(rec)})
}

func grpcRunError(err error) error {
	switch {
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal), errors.Is(err, ErrRunNotRunning), errors.Is(err, ErrRunStatusChanged):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRunID), errors.Is(err, ErrInvalidExperiment):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// CreateRun takes {run_id?, experiment_yaml?, start?}; an empty document
// creates a run of the default experiment.
func (s *CoverageGRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	exp := config.DefaultExperiment()
	if yamlText := stringField(req, "experiment_yaml"); yamlText != "" {
		parsed, err := config.ParseExperimentYAMLString(yamlText)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		exp = parsed
	}

	rec, err := s.store.Create(stringField(req, "run_id"), exp)
	if err != nil {
		return nil, grpcRunError(err)
	}
	logger.Info("run created", "run_id", rec.Run.ID)

	if req.GetFields()["start"].GetBoolValue() {
		if rec, err = s.Executor.Start(rec.Run.ID); err != nil {
			return nil, grpcRunError(err)
		}
	}
	return runResponse(rec)
}

func (s *CoverageGRPCServer) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.Executor.Start(runID)
	if err != nil {
		return nil, grpcRunError(err)
	}
	logger.Info("run started (gRPC)", "run_id", runID)
	return runResponse(rec)
}

func (s *CoverageGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, grpcRunError(err)
	}
	logger.Info("run cancelled", "run_id", runID)
	return runResponse(rec)
}

func (s *CoverageGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return toStruct(map[string]any{
		"run":      runJSON(rec),
		"progress": rec.Progress,
	})
}

// ListRuns takes {limit?, status?}
func (s *CoverageGRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var filter models.RunStatus
	if raw := stringField(req, "status"); raw != "" {
		parsed, ok := models.ParseRunStatus(strings.ToLower(raw))
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", raw)
		}
		filter = parsed
	}
	recs := s.store.List(int(req.GetFields()["limit"].GetNumberValue()), 0, filter)
	runs := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, runJSON(rec))
	}
	return toStruct(map[string]any{"runs": runs})
}

// GetReport takes {run_id, format?}. JSON reports are returned as the
// "report" object, other formats as rendered "content" text.
func (s *CoverageGRPCServer) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	if rec.Report == nil {
		return nil, status.Error(codes.FailedPrecondition, "report not available")
	}

	format, err := report.ParseFormat(stringField(req, "format"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	switch format {
	case report.FormatJSON:
		return toStruct(map[string]any{
			"run_id": runID,
			"report": report.NewDocument(runID, rec.Experiment, rec.Report),
		})
	case report.FormatXLSX:
		return nil, status.Error(codes.InvalidArgument, "xlsx reports are only available over HTTP")
	}

	var buf bytes.Buffer
	writer, err := report.NewWriter(format, &buf)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, err := writer.Write(report.NewDocument(runID, rec.Experiment, rec.Report)); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to render report: %v", err)
	}
	return toStruct(map[string]any{
		"run_id":       runID,
		"format":       string(format),
		"content":      buf.String(),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}
