package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/config"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/orchestrator"
	"github.com/aristath/agentflow/internal/registry"
	"github.com/aristath/agentflow/internal/tui"
)

type runOptions struct {
	contextFile string
	useTUI      bool
	jsonOutput  bool
	timeScale   float64
	metricsAddr string
	repeat      int
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a configured workflow",
		Long: `Run a configured workflow to completion and print its result.

Agent types with a command configured run that program, which receives the
task payload as JSON on stdin. All other types use a simulated agent whose
duration is scaled by --time-scale.

Every invocation is retried with exponential backoff and guarded by a
circuit breaker per agent type. An open breaker marks the type unhealthy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.contextFile, "context", "", "JSON file with the run context passed to every task")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Show live progress in a terminal UI")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().Float64Var(&opts.timeScale, "time-scale", 1.0, "Multiplier for simulated agent durations")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 1, "Number of times to run the workflow")
	return cmd
}

// session holds everything a run needs, built from the config.
type session struct {
	logger   *slog.Logger
	bus      *events.EventBus
	registry *registry.Registry
	breakers *agent.BreakerRegistry
	procs    *agent.ProcessManager
	metrics  *orchestrator.Metrics
	prom     *prometheus.Registry
	runner   *orchestrator.Runner
}

func newSession(cfg *config.Config, logger *slog.Logger, timeScale float64) (*session, error) {
	sess := &session{
		logger:   logger,
		bus:      events.NewEventBus(),
		registry: registry.New(logger),
		procs:    agent.NewProcessManager(),
		prom:     prometheus.NewRegistry(),
	}

	if err := cfg.RegisterAgents(sess.registry); err != nil {
		return nil, err
	}
	sess.registry.OnHealthChange(func(t agent.Type, healthy bool) {
		sess.bus.Publish(events.AgentHealthEvent{AgentType: t, Healthy: healthy, Timestamp: time.Now()})
	})
	sess.breakers = agent.NewBreakerRegistry(cfg.CircuitBreakerThreshold, sess.registry.SetHealthy, logger)

	caps, err := buildCapabilities(cfg, sess.breakers, sess.procs, timeScale)
	if err != nil {
		return nil, err
	}

	sess.metrics, err = orchestrator.NewMetrics(cfg.HistorySize, sess.prom)
	if err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	sess.runner = orchestrator.NewRunner(sess.registry, caps, orchestrator.RunnerConfig{
		MaxParallelTasks: cfg.MaxParallelTasks,
		TaskTimeout:      cfg.TaskTimeout.Std(),
		Timeouts:         cfg.Timeouts(),
		Logger:           logger,
		Bus:              sess.bus,
		Metrics:          sess.metrics,
		Catalog:          catalog,
	})
	return sess, nil
}

// buildCapabilities wires a capability for every configured agent type:
// the configured command, or a simulated agent, behind retry and a breaker.
func buildCapabilities(cfg *config.Config, breakers *agent.BreakerRegistry, pm *agent.ProcessManager, timeScale float64) (agent.Capabilities, error) {
	caps := agent.Capabilities{}
	retry := cfg.RetryPolicy()
	for name, a := range cfg.Agents {
		t, err := agent.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("agents: %w", err)
		}

		var inner agent.Capability
		if a.Command != "" {
			c, err := agent.NewCommand(t, a.Command, a.Args, pm)
			if err != nil {
				return nil, err
			}
			inner = c
		} else {
			inner = agent.NewSimulated(t, timeScale)
		}

		if err := caps.Register(t, agent.NewResilient(t, inner, breakers, retry)); err != nil {
			return nil, err
		}
	}
	return caps, nil
}

// close releases the session. Subprocesses still running are killed.
func (sess *session) close() {
	if err := sess.registry.Close(); err != nil {
		sess.logger.Warn("stopping health monitor", "error", err)
	}
	if err := sess.procs.KillAll(); err != nil {
		sess.logger.Warn("killing subprocesses", "error", err)
	}
	sess.bus.Close()
}

func readContext(path string) (agent.Payload, error) {
	if path == "" {
		return agent.Payload{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var payload agent.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing context %s: %w", path, err)
	}
	return payload, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func runWorkflow(cmd *cobra.Command, global *globalOptions, opts *runOptions, name string) error {
	if opts.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", opts.repeat)
	}
	if opts.timeScale <= 0 {
		return fmt.Errorf("--time-scale must be positive, got %g", opts.timeScale)
	}

	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	if _, err := cfg.Template(name); err != nil {
		return err
	}
	payload, err := readContext(opts.contextFile)
	if err != nil {
		return err
	}

	logger := global.logger
	if opts.useTUI && global.logFile == "" {
		// stderr belongs to the TUI
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sess, err := newSession(cfg, logger, opts.timeScale)
	if err != nil {
		return err
	}
	defer sess.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HealthInterval > 0 {
		check := func(_ context.Context, t agent.Type) bool { return sess.breakers.Healthy(t) }
		if err := sess.registry.StartHealthMonitor(ctx, cfg.HealthInterval.Std(), check); err != nil {
			return err
		}
	}

	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, sess.prom, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var results []*orchestrator.WorkflowResult
	var runErr error
	if opts.useTUI {
		results, runErr = runWithTUI(ctx, cmd, global, cfg, sess, name, payload, opts.repeat)
	} else {
		results, runErr = runRepeated(ctx, sess, name, payload, opts.repeat)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		if err := writeJSON(out, results, sess.metrics.Snapshot()); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printResult(out, r)
		}
		printMetrics(out, sess.metrics.Snapshot())
	}

	if runErr != nil {
		return runErr
	}
	degraded := 0
	for _, r := range results {
		if r.State != orchestrator.StateCompleted {
			degraded++
		}
	}
	if degraded > 0 {
		return fmt.Errorf("%d of %d runs did not complete", degraded, len(results))
	}
	return nil
}

// runRepeated runs the workflow n times in sequence, stopping early if ctx
// is canceled. The partial result of a canceled run is included.
func runRepeated(ctx context.Context, sess *session, name string, payload agent.Payload, n int) ([]*orchestrator.WorkflowResult, error) {
	var results []*orchestrator.WorkflowResult
	for i := 0; i < n; i++ {
		result, err := sess.runner.RunTemplate(ctx, name, payload)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// runWithTUI runs the workflows in the background while the TUI renders
// bus events. Quitting the TUI cancels runs still in progress.
func runWithTUI(ctx context.Context, cmd *cobra.Command, global *globalOptions, cfg *config.Config, sess *session, name string, payload agent.Payload, n int) ([]*orchestrator.WorkflowResult, error) {
	globalPath, projectPath, err := global.configPaths()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.New(sess.bus, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout()))

	type outcome struct {
		results []*orchestrator.WorkflowResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := runRepeated(ctx, sess, name, payload, n)
		done <- outcome{results, err}
		p.Send(tui.DoneMsg{})
	}()

	_, tuiErr := p.Run()
	cancel()
	res := <-done
	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return res.results, fmt.Errorf("tui: %w", tuiErr)
	}
	return res.results, res.err
}
