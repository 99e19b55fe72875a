// Package grpc exposes the planner and stage reasoning over gRPC.
//
// Both services exchange google.protobuf.Struct messages and are described
// by hand-written ServiceDescs, so the package needs no generated code.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
)

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
type GracefulServer struct {
	grpcServer *grpc.Server
	logger     agents.Logger
	address    string
	listener   net.Listener
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewGracefulServer creates a server with ServerOptions unless opts are
// given. Register services on it before Start.
func NewGracefulServer(address string, logger agents.Logger, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}
	return &GracefulServer{
		grpcServer: grpc.NewServer(opts...),
		logger:     logger.Bind("component", "grpc_server"),
		address:    address,
	}
}

// RegisterPlanner registers the planner service.
func (s *GracefulServer) RegisterPlanner(p *PlannerServer) {
	s.grpcServer.RegisterService(&PlannerServiceDesc, p)
}

// RegisterReasoning registers the reasoning service.
func (s *GracefulServer) RegisterReasoning(r *ReasoningServer) {
	s.grpcServer.RegisterService(&ReasoningServiceDesc, r)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *GracefulServer) Serve(ctx context.Context, lis net.Listener) error {
	s.listener = lis
	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.ShutdownWithTimeout(10 * time.Second)
		return nil
	case err := <-errCh:
		if err != nil && err != grpc.ErrServerStopped {
			return fmt.Errorf("grpc server error: %w", err)
		}
		return nil
	}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, lis)
}

// GracefulStop stops accepting connections and waits for in-flight calls.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// ShutdownWithTimeout stops gracefully, forcing a stop after timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
	}
}

// GetGRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the configured address.
func (s *GracefulServer) Address() string {
	return s.address
}
