package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/omegaflow/agentcore/internal/agent"
	"github.com/omegaflow/agentcore/internal/agent/providers"
	"github.com/omegaflow/agentcore/internal/agent/providers/openai"
	"github.com/omegaflow/agentcore/internal/channels"
	"github.com/omegaflow/agentcore/internal/config"
	"github.com/omegaflow/agentcore/internal/gateway"
	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/mcp"
	"github.com/omegaflow/agentcore/internal/memory"
	"github.com/omegaflow/agentcore/internal/metrics"
	"github.com/omegaflow/agentcore/internal/sessions"
)

func newServeCommand() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to agentrt.yaml")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus /metrics listen address")
	return cmd
}

func runServe(ctx context.Context, configPath, metricsAddr string) error {
	log := logging.New(logging.Config{Level: "info"})

	cfg, err := config.Load(configPath, func(msg string, args ...any) { log.Warn(msg, args...) })
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log = logging.New(logging.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)

	pool := mcp.NewPool(mcp.PoolConfig{
		ConnectionsPerServer: cfg.MCP.PoolSize,
		ConnectAttempts:      cfg.MCP.ConnectAttempts,
		ListCacheTTL:         cfg.MCP.ListCacheTTL,
		ListCacheCapacity:    cfg.MCP.ListCacheCapacity,
	}, log, metricsReg)

	var specs []mcp.ServerSpec
	for _, s := range cfg.MCP.Servers {
		spec := mcp.ServerSpec{ID: s.ID, Command: s.Command, Args: s.Args, URL: s.URL}
		if s.Transport == "http" {
			spec.Transport = mcp.TransportHTTP
		} else {
			spec.Transport = mcp.TransportStdio
		}
		if s.BearerTokenEnv != "" {
			spec.BearerToken = os.Getenv(s.BearerTokenEnv)
		}
		specs = append(specs, spec)
	}
	if len(specs) > 0 {
		if err := pool.Start(ctx, specs); err != nil {
			return fmt.Errorf("start mcp pool: %w", err)
		}
	}
	defer pool.Stop()

	var sessBackend sessions.Backend
	var leaseStore sessions.LeaseStore
	if cfg.Memory.Backend == "sqlite" || cfg.Dispatch.SessionGate == "distributed" {
		store, err := sessions.OpenSQLiteStore(cfg.Memory.SQLitePath)
		if err != nil {
			return fmt.Errorf("open session sqlite store: %w", err)
		}
		defer store.Close()
		sessBackend = store
		leaseStore = store
	}
	sessStore := sessions.NewStore(sessions.WindowPolicy{High: cfg.Session.WindowHigh, Low: cfg.Session.WindowLow}, sessBackend)

	var gate sessions.Gate
	if cfg.Dispatch.SessionGate == "distributed" && leaseStore != nil {
		gate = sessions.NewDistributedGate(leaseStore, hostOwnerID(), 30*time.Second)
	} else {
		gate = sessions.NewMemoryGate()
	}

	var memBackend memory.Backend
	if cfg.Memory.Backend == "sqlite" {
		backend, err := memory.OpenSQLiteBackend(cfg.Memory.SQLitePath)
		if err != nil {
			return fmt.Errorf("open memory sqlite backend: %w", err)
		}
		defer backend.Close()
		memBackend = backend
	}
	episodes, err := memory.NewStore(memory.Config{
		Dimension: cfg.Memory.Dimension, Lambda: cfg.Memory.Lambda, OversampleK: cfg.Memory.OversampleK,
		Threshold: cfg.Memory.Threshold, MaxRecall: cfg.Memory.MaxRecall, LearningRate: cfg.Memory.LearningRate,
		DiscountFactor: cfg.Memory.DiscountFactor, DecayEveryN: cfg.Memory.DecayEveryN, DecayFactor: cfg.Memory.DecayFactor,
	}, memBackend)
	if err != nil {
		return fmt.Errorf("init episodic memory: %w", err)
	}

	registry := providers.NewRegistry("openai")
	registry.Register(openai.New(os.Getenv(cfg.Agent.APIKeyEnv), cfg.Agent.InferenceURL))
	provider, err := registry.Get("openai")
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}

	engine := agent.NewEngine(agent.Config{MaxToolRounds: cfg.Agent.MaxToolRounds, Model: cfg.Agent.Model}, provider, pool, sessStore, episodes, nil, log)
	runner := agent.Runner{Engine: engine}

	channelRegistry := channels.NewRegistry()
	sender := gateway.NewReplySender(channelRegistry)

	fg := gateway.NewForeground(gateway.ForegroundConfig{
		QueueSize: cfg.Dispatch.ForegroundQueue, Workers: cfg.Dispatch.ForegroundWorkers, Deadline: cfg.Dispatch.ForegroundDeadline,
	}, gate, runner, sender, log, metricsReg)
	fg.Start(ctx)
	defer fg.Shutdown()

	jobStore := gateway.NewMemoryJobStore()
	jobs := gateway.NewJobManager(gateway.JobManagerConfig{
		QueueSize: cfg.Dispatch.BackgroundQueue, Workers: cfg.Dispatch.BackgroundWorkers, Deadline: cfg.Dispatch.BackgroundDeadline,
	}, jobStore, runner, log, metricsReg)
	jobs.Start(ctx)
	defer jobs.Shutdown()
	go drainCompletions(jobs, sender, log)

	fabric := gateway.NewFabric(gateway.FabricConfig{InboundQueueSize: cfg.Dispatch.InboundQueueSize}, nil, fg, jobs, sessStore, sender, log)
	go fabric.Run(ctx)
	defer fabric.Shutdown()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err.Error())
		}
	}()
	defer srv.Close()

	log.Info("agentrt serving", "metrics_addr", metricsAddr)

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()
	log.Info("shutting down")
	return nil
}

func drainCompletions(jobs *gateway.JobManager, sender gateway.ReplySender, log *logging.Logger) {
	for event := range jobs.Completions() {
		content := event.Output
		if event.Kind != "succeeded" {
			content = fmt.Sprintf("job %s", event.Kind)
			if event.Error != "" {
				content += ": " + event.Error
			}
		}
		if err := sender.Send(context.Background(), "", event.Recipient, content); err != nil {
			log.Warn("failed to deliver job completion", "job", event.JobID, "error", err.Error())
		}
	}
}

func hostOwnerID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "agentrt"
}
