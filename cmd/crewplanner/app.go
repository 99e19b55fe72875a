package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/crewplanner/commbus"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/grpc"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/llm"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/logging"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/runtime"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/store"
)

// app holds the components shared by the commands. Close releases them in
// reverse order of acquisition.
type app struct {
	cfg       *config.EngineConfig
	logger    *logging.ZapLogger
	reasoning agents.ReasoningService
	invoker   *agents.StageInvoker
	bus       *commbus.InMemoryCommBus
	runs      *store.BadgerStore

	closers []func() error
}

// loadConfig reads the engine configuration and applies flag overrides.
func loadConfig(opts *rootOptions) (*config.EngineConfig, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newApp wires logging, tracing, reasoning, the event bus and the run store.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	config.SetEngineConfig(cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, logger.Sync)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, observability.TracerOptions{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		})
	}

	if err := a.initReasoning(); err != nil {
		a.Close()
		return nil, err
	}
	a.invoker = agents.NewStageInvoker(a.reasoning, logger,
		agents.WithCallTimeout(cfg.Reasoning.CallTimeout()),
		agents.WithRateLimit(cfg.Reasoning.RatePerSecond, cfg.Reasoning.Burst),
	)

	if err := a.initEvents(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initReasoning() error {
	rc := a.cfg.Reasoning
	if rc.Backend == "grpc" {
		remote, err := grpc.DialReasoningService(rc.Address, a.logger)
		if err != nil {
			return err
		}
		a.reasoning = remote
		a.closers = append(a.closers, remote.Close)
		return nil
	}

	provider, err := llm.NewProvider(rc, a.logger)
	if err != nil {
		return err
	}
	a.reasoning = agents.NewLLMReasoningService(provider, rc.Model, llm.Options(rc), a.logger)
	return nil
}

func (a *app) initEvents() error {
	a.bus = commbus.NewInMemoryCommBus(a.logger)
	a.bus.AddMiddleware(commbus.NewLoggingMiddleware(a.logger))

	if a.cfg.Events.NATSURL == "" {
		return nil
	}
	conn, err := commbus.Connect(a.cfg.Events.NATSURL, a.logger)
	if err != nil {
		return err
	}
	bridge := commbus.NewNATSBridge(conn, a.cfg.Events.SubjectPrefix, a.logger)
	a.bus.AddMiddleware(commbus.NewCircuitBreakerMiddleware(5, 30*time.Second, nil, a.logger))
	detach := bridge.Attach(a.bus)
	a.closers = append(a.closers, func() error {
		detach()
		return bridge.Close()
	})
	return nil
}

func (a *app) openStore() error {
	runs, err := store.Open(a.cfg.Store, a.logger)
	if err != nil {
		return err
	}
	a.runs = runs
	a.closers = append(a.closers, runs.Close)
	return nil
}

// runner builds a Runner publishing to the bus and persisting to the store.
func (a *app) runner() *runtime.Runner {
	return runtime.NewRunner(a.invoker, a.logger, a.cfg.Flow,
		runtime.WithEventSink(commbus.NewEventSink(a.bus)),
		runtime.WithRunStore(a.runs),
	)
}

// Close releases every component.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// writeOutput encodes v as indented JSON or as YAML keyed by the JSON
// field names.
func writeOutput(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	switch format {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
