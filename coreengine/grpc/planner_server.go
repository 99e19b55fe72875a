package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/runtime"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/store"
)

// Full method names of the planner service.
const (
	PlannerServiceName   = "crewplanner.v1.PlannerService"
	PlannerPlanMethod    = "/" + PlannerServiceName + "/Plan"
	PlannerGetRunMethod  = "/" + PlannerServiceName + "/GetRun"
	defaultPlanRPCBudget = 30 * time.Minute
)

// PlannerServer serves plan requests over gRPC.
//
// Plan takes a Struct shaped like the HTTP request body
// ({task, threshold, budget, domain}) and answers with the final artifact.
// GetRun takes {run_id} and answers with the stored run record.
type PlannerServer struct {
	logger agents.Logger
	runner *runtime.Runner
	runs   runtime.RunReader
}

// NewPlannerServer creates a PlannerServer. runs may be nil when no store
// is configured; GetRun then answers Unimplemented.
func NewPlannerServer(runner *runtime.Runner, runs runtime.RunReader, logger agents.Logger) *PlannerServer {
	return &PlannerServer{
		logger: logger.Bind("component", "planner_server"),
		runner: runner,
		runs:   runs,
	}
}

// Plan executes one run.
func (s *PlannerServer) Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := s.runner.ConfigFromRequest(req.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPlanRPCBudget)
		defer cancel()
	}

	artifact, err := s.runner.Plan(ctx, cfg)
	if err != nil {
		s.logger.Warn("grpc_plan_failed", "error", err.Error())
		return nil, toStatus(err)
	}

	s.logger.Info("grpc_plan_completed",
		"run_id", artifact.RunID,
		"terminal_reason", string(artifact.TerminalReason),
	)
	out, err := toStruct(artifact)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GetRun returns a stored run record.
func (s *PlannerServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.Unimplemented, "run store is not configured")
	}
	runID := stringField(req, "run_id")
	if err := validateRequired(runID, "run_id"); err != nil {
		return nil, err
	}

	rec, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case config.IsConfigError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// =============================================================================
// SERVICE DESCRIPTOR
// =============================================================================

// plannerService is the handler type checked by RegisterService.
type plannerService interface {
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PlannerServiceDesc describes the planner service. Messages are
// google.protobuf.Struct so no generated code is needed.
var PlannerServiceDesc = grpc.ServiceDesc{
	ServiceName: PlannerServiceName,
	HandlerType: (*plannerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Plan", Handler: plannerPlanHandler},
		{MethodName: "GetRun", Handler: plannerGetRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crewplanner/v1/planner.proto",
}

func plannerPlanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(plannerService).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlannerPlanMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(plannerService).Plan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func plannerGetRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(plannerService).GetRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlannerGetRunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(plannerService).GetRun(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PlannerClient calls a remote PlannerService.
type PlannerClient struct {
	conn grpc.ClientConnInterface
}

// NewPlannerClient wraps an established connection.
func NewPlannerClient(conn grpc.ClientConnInterface) *PlannerClient {
	return &PlannerClient{conn: conn}
}

// Plan calls PlannerService/Plan.
func (c *PlannerClient) Plan(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, PlannerPlanMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun calls PlannerService/GetRun.
func (c *PlannerClient) GetRun(ctx context.Context, runID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"run_id": runID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, PlannerGetRunMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
