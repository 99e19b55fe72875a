package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/runtime"
)

type planOptions struct {
	task      string
	file      string
	domain    string
	threshold int
	budget    int
	output    string
	progress  bool
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Run one planning flow and print the resulting crew",
		Long: `Run analysis, planning, implementation and evaluation for a task,
backtracking while the evaluation score is below the threshold and the
refinement budget allows. The final artifact is printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "task to design a crew for")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML run description (task, domain, threshold, budget)")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "domain name, e.g. \"customer support\"")
	cmd.Flags().IntVar(&opts.threshold, "threshold", 0, "acceptance score from 0 to 10 (default from config)")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "refinement budget (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "report each stage on stderr")
	cmd.MarkFlagsMutuallyExclusive("task", "file")
	return cmd
}

func runPlan(cmd *cobra.Command, root *rootOptions, opts *planOptions) error {
	if opts.output != "json" && opts.output != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", opts.output)
	}
	if opts.task == "" && opts.file == "" {
		return errors.New("one of --task or --file is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, root)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := buildRunConfig(cmd, &config.DefaultConfigProvider{}, opts)
	if err != nil {
		return err
	}

	runner := a.runner()
	runID, stream, err := runner.Stream(ctx, cfg)
	if err != nil {
		return err
	}
	a.logger.Info("plan_started", "run_id", runID)

	artifact, runErr := drain(stream, cmd.ErrOrStderr(), opts.progress)
	if artifact == nil {
		return runErr
	}
	if err := writeOutput(cmd.OutOrStdout(), opts.output, artifact); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run %s cancelled; partial artifact printed", runID)
	}
	return runErr
}

// buildRunConfig merges the run file, flags and configured defaults.
func buildRunConfig(cmd *cobra.Command, provider config.ConfigProvider, opts *planOptions) (config.RunConfig, error) {
	engine := provider.GetEngineConfig()

	var cfg config.RunConfig
	if opts.file != "" {
		var err error
		if cfg, err = config.LoadRunConfig(opts.file, engine.Flow); err != nil {
			return cfg, err
		}
	} else {
		cfg = engine.NewRunConfig(opts.task)
	}

	if cmd.Flags().Changed("threshold") {
		cfg.Threshold = opts.threshold
	}
	if cmd.Flags().Changed("budget") {
		cfg.Budget = opts.budget
	}
	if opts.domain != "" {
		cfg.Domain.Domain = opts.domain
	}
	return cfg, cfg.Validate()
}

// drain consumes a run stream, optionally reporting progress to w, and
// returns the final artifact and run error.
func drain(stream <-chan runtime.StageOutput, w io.Writer, progress bool) (*envelope.FinalArtifact, error) {
	var artifact *envelope.FinalArtifact
	var runErr error
	for out := range stream {
		switch {
		case out.Stage == runtime.StageEnd:
			artifact, runErr = out.Artifact, out.Error
		case !progress:
		case out.Decision != nil && out.Decision.IsFinal():
			fmt.Fprintf(w, "decision: finalize (%s)\n", out.Decision.Reason)
		case out.Decision != nil:
			fmt.Fprintf(w, "decision: backtrack to %s\n", out.Decision.Target)
		default:
			fmt.Fprintf(w, "stage %-14s %s\n", out.Stage, out.Result.Kind)
		}
	}
	return artifact, runErr
}
