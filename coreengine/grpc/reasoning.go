package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
)

// Full method names of the reasoning service.
const (
	ReasoningServiceName  = "crewplanner.v1.ReasoningService"
	ReasoningReasonMethod = "/" + ReasoningServiceName + "/Reason"
)

// =============================================================================
// CLIENT
// =============================================================================

// RemoteReasoningService runs stage reasoning in another process.
//
// Request:  {stage, payload}
// Response: {document}
type RemoteReasoningService struct {
	conn   grpc.ClientConnInterface
	closer func() error
	logger agents.Logger
}

// DialReasoningService connects to a reasoning service at address.
func DialReasoningService(address string, logger agents.Logger) (*RemoteReasoningService, error) {
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial reasoning service %s: %w", address, err)
	}
	svc := NewRemoteReasoningService(conn, logger)
	svc.closer = conn.Close
	return svc, nil
}

// NewRemoteReasoningService wraps an established connection.
func NewRemoteReasoningService(conn grpc.ClientConnInterface, logger agents.Logger) *RemoteReasoningService {
	return &RemoteReasoningService{
		conn:   conn,
		logger: logger.Bind("component", "remote_reasoning"),
	}
}

// Reason implements agents.ReasoningService.
func (r *RemoteReasoningService) Reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("encode reasoning payload: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"stage":   string(stage),
		"payload": body,
	})
	if err != nil {
		return nil, fmt.Errorf("encode reasoning payload: %w", err)
	}

	start := time.Now()
	resp := new(structpb.Struct)
	err = r.conn.Invoke(ctx, ReasoningReasonMethod, req, resp)
	observability.RecordGRPCRequest(ReasoningReasonMethod, status.Code(err).String(), int(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fromStatus(err)
	}

	doc := structField(resp, "document")
	if doc == nil {
		return nil, fmt.Errorf("%w: response has no document", agents.ErrMalformedResponse)
	}
	return json.Marshal(doc.AsMap())
}

// Close closes the connection if this service dialed it.
func (r *RemoteReasoningService) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// fromStatus maps status codes back onto the errors the invoker classifies.
func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("remote reasoning: %w", context.DeadlineExceeded)
	case codes.DataLoss:
		return fmt.Errorf("remote reasoning: %w: %s", agents.ErrMalformedResponse, status.Convert(err).Message())
	default:
		return fmt.Errorf("remote reasoning: %w", err)
	}
}

// =============================================================================
// SERVER
// =============================================================================

// ReasoningServer exposes a local ReasoningService over gRPC.
type ReasoningServer struct {
	service agents.ReasoningService
	logger  agents.Logger
}

// NewReasoningServer creates a ReasoningServer.
func NewReasoningServer(service agents.ReasoningService, logger agents.Logger) *ReasoningServer {
	return &ReasoningServer{
		service: service,
		logger:  logger.Bind("component", "reasoning_server"),
	}
}

// Reason runs one stage.
func (s *ReasoningServer) Reason(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	stage, ok := envelope.ParseStage(stringField(req, "stage"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown stage %q", stringField(req, "stage"))
	}
	payload, err := requireStruct(req, "payload")
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	out, err := s.service.Reason(ctx, stage, raw)
	if err != nil {
		s.logger.Warn("reasoning_failed", "stage", string(stage), "error", err.Error())
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		case errors.Is(err, agents.ErrMalformedResponse):
			return nil, status.Error(codes.DataLoss, err.Error())
		default:
			return nil, status.Error(codes.Unavailable, err.Error())
		}
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, status.Errorf(codes.DataLoss, "document is not a JSON object: %v", err)
	}
	return structpb.NewStruct(map[string]any{"document": doc})
}

type reasoningService interface {
	Reason(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ReasoningServiceDesc describes the reasoning service.
var ReasoningServiceDesc = grpc.ServiceDesc{
	ServiceName: ReasoningServiceName,
	HandlerType: (*reasoningService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reason", Handler: reasoningReasonHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crewplanner/v1/reasoning.proto",
}

func reasoningReasonHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(reasoningService).Reason(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReasoningReasonMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(reasoningService).Reason(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var _ agents.ReasoningService = (*RemoteReasoningService)(nil)
