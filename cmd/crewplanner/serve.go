package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/grpc"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/httpapi"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var httpAddr, grpcAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planner over HTTP and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			if httpAddr != "" {
				a.cfg.Server.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				a.cfg.Server.GRPCAddr = grpcAddr
			}

			runner := a.runner()
			httpServer := httpapi.NewServer(runner, a.runs, a.logger)

			grpcServer := grpc.NewGracefulServer(a.cfg.Server.GRPCAddr, a.logger)
			grpcServer.RegisterPlanner(grpc.NewPlannerServer(runner, a.runs, a.logger))
			if a.cfg.Reasoning.Backend != "grpc" {
				// Other planners may delegate stage reasoning to this process.
				grpcServer.RegisterReasoning(grpc.NewReasoningServer(a.reasoning, a.logger))
			}

			a.logger.Info("crewplanner_serving",
				"http_addr", a.cfg.Server.HTTPAddr,
				"grpc_addr", a.cfg.Server.GRPCAddr,
				"backend", a.cfg.Reasoning.Backend,
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return httpServer.Start(gctx, a.cfg.Server.HTTPAddr) })
			g.Go(func() error { return grpcServer.Start(gctx) })

			err = g.Wait()
			a.logger.Info("crewplanner_stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (default from config)")
	return cmd
}
