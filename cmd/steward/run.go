package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/calder-ai/steward/internal/component"
	"github.com/calder-ai/steward/internal/config"
	"github.com/calder-ai/steward/internal/observability"
	"github.com/calder-ai/steward/internal/orchestrator"
	"github.com/calder-ai/steward/internal/problem"
	"github.com/calder-ai/steward/internal/registry"
	"github.com/calder-ai/steward/internal/scheduler"
)

const runtimeProbeID = "runtime-probe"

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration control plane",
	Long: `Starts the control plane: registers the built-in runtime probe,
loads any configured pipeline catalog, installs the default monitoring
pipeline and trigger rule, and runs until interrupted.`,
	RunE: runControlPlane,
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
}

func runControlPlane(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(cfg.Logging)

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		opts = append(opts, orchestrator.WithMetrics(metrics))
	}

	orch := orchestrator.New(*cfg, buildDiagnostic(logger.Warn), opts...)

	if err := registerBuiltins(ctx, orch.Registry()); err != nil {
		return err
	}
	if err := installPipelines(cfg, orch.Scheduler()); err != nil {
		return err
	}

	if cfg.Metrics.Enabled && metricsAddr != "" {
		go serveMetrics(metricsAddr, logger.Error)
	}

	orch.Start(ctx)
	logger.Info("control plane running", "config", configFile)

	<-ctx.Done()
	logger.Info("shutting down")
	orch.Stop()
	return nil
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.NewLoader(config.NewValidator()).Load(configFile)
}

// buildDiagnostic wires the external diagnostic service. The OpenAI backend
// reads OPENAI_API_KEY from the environment; without credentials the control
// plane still runs, but every ticket escalates.
func buildDiagnostic(warn func(msg string, args ...any)) problem.Diagnostic {
	model, err := openai.New()
	if err != nil {
		warn("no diagnostic backend available, tickets will escalate", "error", err)
		return problem.DiagnosticFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("no diagnostic backend configured")
		})
	}
	return problem.NewLangchainDiagnostic(model)
}

// registerBuiltins registers and starts the built-in components.
func registerBuiltins(ctx context.Context, reg *registry.Registry) error {
	components := []component.Component{
		component.NewRuntimeProbe(runtimeProbeID),
		component.NewFunc("echo", "Echo", []string{"data_processing"}, nil),
	}

	for _, c := range components {
		if err := c.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing component %s: %w", c.ID(), err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("starting component %s: %w", c.ID(), err)
		}
		reg.RegisterComponent(ctx, c)
		reg.UpdateStatus(ctx, c.ID(), c.Status())
	}
	return nil
}

// installPipelines loads the configured catalog, then installs the default
// monitoring pipeline and its trigger rule.
func installPipelines(cfg *config.Config, sched *scheduler.Scheduler) error {
	if cfg.Pipelines.CatalogPath != "" {
		pipelines, err := scheduler.LoadCatalog(cfg.Pipelines.CatalogPath)
		if err != nil {
			return err
		}
		for _, p := range pipelines {
			sched.RegisterPipeline(p)
		}
	}

	if _, ok := sched.Pipeline("monitoring"); !ok {
		sched.RegisterPipeline(scheduler.NewPipeline("monitoring").
			AddStage(runtimeProbeID, false).
			Parallel())
	}
	sched.RegisterTriggerRule("monitoring-periodic",
		scheduler.NewTriggerRule("monitoring", nil, time.Minute))

	return nil
}

func serveMetrics(addr string, logError func(msg string, args ...any)) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logError("metrics server stopped", "error", err)
	}
}
