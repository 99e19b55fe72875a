package runtime

import (
	"context"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// RunReader reads persisted run records.
type RunReader interface {
	Get(ctx context.Context, runID string) (envelope.RunRecord, error)
	List(ctx context.Context, limit int) ([]envelope.RunRecord, error)
}

// RunDeleter removes persisted run records.
type RunDeleter interface {
	Delete(ctx context.Context, runID string) error
}

// Runner creates one Orchestrator per request. The invoker, event sink and
// run store are shared across runs.
type Runner struct {
	invoker  Invoker
	logger   agents.Logger
	defaults config.FlowDefaults
	opts     []Option
}

// NewRunner creates a Runner. opts are applied to every Orchestrator it
// creates.
func NewRunner(invoker Invoker, logger agents.Logger, defaults config.FlowDefaults, opts ...Option) *Runner {
	return &Runner{
		invoker:  invoker,
		logger:   logger,
		defaults: defaults,
		opts:     opts,
	}
}

// ConfigFromRequest builds a validated RunConfig from a decoded request
// body. Threshold and budget fall back to the runner defaults.
func (r *Runner) ConfigFromRequest(body map[string]any) (config.RunConfig, error) {
	merged := make(map[string]any, len(body)+2)
	for k, v := range body {
		merged[k] = v
	}
	if _, ok := merged["threshold"]; !ok {
		merged["threshold"] = r.defaults.Threshold
	}
	if _, ok := merged["budget"]; !ok {
		merged["budget"] = r.defaults.Budget
	}

	cfg, err := config.RunConfigFromMap(merged)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Plan executes one run to completion.
func (r *Runner) Plan(ctx context.Context, cfg config.RunConfig) (*envelope.FinalArtifact, error) {
	orch, err := NewOrchestrator(cfg, r.invoker, r.logger, r.opts...)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx)
}

// Stream starts one run and returns its stage outputs.
func (r *Runner) Stream(ctx context.Context, cfg config.RunConfig) (string, <-chan StageOutput, error) {
	orch, err := NewOrchestrator(cfg, r.invoker, r.logger, r.opts...)
	if err != nil {
		return "", nil, err
	}
	ch, err := orch.RunWithStream(ctx)
	if err != nil {
		return "", nil, err
	}
	return orch.RunID(), ch, nil
}
