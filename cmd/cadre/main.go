package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadre-dev/cadre/pkg/control"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/gate"
	"github.com/cadre-dev/cadre/pkg/handoff"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/monitor"
	"github.com/cadre-dev/cadre/pkg/pool"
	"github.com/cadre-dev/cadre/pkg/registry"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/team"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/cadre-dev/cadre/pkg/workflow"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds onto the documented exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidArgument):
		return 2
	case errors.Is(err, errdefs.ErrNotFound):
		return 3
	case errors.Is(err, errdefs.ErrPolicyDenied):
		return 4
	case errors.Is(err, errdefs.ErrResourceExhausted):
		return 5
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "cadre",
	Short: "Cadre - multi-agent orchestration platform",
	Long: `Cadre runs software-delivery-style work across pools of autonomous
agents organized into transient teams: skill-matched allocation, team
lifecycle management, versioned document registry, handoff protocol,
workflow execution and quality gates.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLog, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonLog})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cadre version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./cadre-data", "Data directory for state snapshots")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML runtime configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs")

	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(sprintCmd)
	rootCmd.AddCommand(serveCmd)
}

// core bundles the wired runtime components
type core struct {
	store     storage.Store
	broker    *events.Broker
	allocator *control.MemoryAllocator
	pool      *pool.Pool
	teams     *team.Orchestrator
	registry  *registry.Registry
	handoffs  *handoff.Protocol
	gates     *gate.Evaluator
	engine    *workflow.Engine
	monitor   *monitor.Monitor
}

// newCore opens the data directory and wires the full component stack.
// Agents, documents, handoffs and teams are restored from the snapshots.
func newCore(cmd *cobra.Command) (*core, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errdefs.Fatal("failed to create data directory: %v", err)
	}

	fileCfg := &fileConfig{}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := loadConfig(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	allocator := control.NewMemoryAllocator(fileCfg.capacity(types.Resources{
		CPUCores:      64,
		MemoryBytes:   64 << 30,
		StorageBytes:  1 << 40,
		BandwidthMbps: 10000,
	}))

	existing, err := store.ListAgents()
	if err != nil {
		store.Close()
		return nil, errdefs.Fatal("failed to load agents: %v", err)
	}

	poolCfg := pool.DefaultConfig()
	poolCfg.Allocator = allocator
	poolCfg.Store = store
	poolCfg.Broker = broker
	if err := fileCfg.applyPool(&poolCfg); err != nil {
		store.Close()
		return nil, err
	}
	if len(existing) > 0 {
		poolCfg.InitialSize = 0
	}
	agentPool := pool.NewPool(poolCfg)
	for _, agent := range existing {
		if err := agentPool.AddAgent(agent); err != nil {
			log.Warn(fmt.Sprintf("skipped stored agent %s: %v", agent.ID, err))
		}
	}

	teamCfg := team.DefaultConfig()
	teamCfg.Pool = agentPool
	teamCfg.Allocator = allocator
	teamCfg.Policy = control.AllowAllGate{}
	teamCfg.Store = store
	teamCfg.Broker = broker
	if err := fileCfg.applyTeams(&teamCfg); err != nil {
		store.Close()
		return nil, err
	}
	teams := team.NewOrchestrator(teamCfg)
	if err := teams.Load(); err != nil {
		store.Close()
		return nil, err
	}

	reg := registry.NewRegistry(registry.Config{Store: store, Broker: broker})
	if err := reg.Load(); err != nil {
		store.Close()
		return nil, err
	}

	handoffs := handoff.NewProtocol(handoff.Config{Registry: reg, Store: store, Broker: broker})
	if err := handoffs.Load(); err != nil {
		store.Close()
		return nil, err
	}

	gates := gate.NewEvaluator(gate.Config{Store: store, Broker: broker})

	engine := workflow.NewEngine(workflow.Config{
		Registry: reg,
		Handoffs: handoffs,
		Teams:    teams,
		Store:    store,
		Broker:   broker,
		Gates:    gates,
	})

	mon := monitor.NewMonitor(monitor.Config{Broker: broker})

	return &core{
		store:     store,
		broker:    broker,
		allocator: allocator,
		pool:      agentPool,
		teams:     teams,
		registry:  reg,
		handoffs:  handoffs,
		gates:     gates,
		engine:    engine,
		monitor:   mon,
	}, nil
}

// close releases the snapshot store and background workers without
// dissolving teams.
func (c *core) close() {
	c.handoffs.Stop()
	c.monitor.Stop()
	c.broker.Stop()
	if err := c.store.Close(); err != nil {
		log.Errorf("failed to close store", err)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration runtime",
	Long: `Start the full runtime: agent pool with health monitoring, team
orchestrator, workflow engine, performance monitor, and the Prometheus
metrics endpoint. Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCore(cmd)
		if err != nil {
			return err
		}

		c.pool.Start()
		c.monitor.Start()

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %v", err)
			}
		}()

		fmt.Printf("Cadre runtime is running (metrics on %s). Press Ctrl+C to stop.\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		server.Close()
		c.pool.Shutdown()
		c.close()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9464", "Address for the Prometheus metrics endpoint")
}

// parseTimestamp accepts RFC3339 timestamps from flags
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errdefs.InvalidArgument("bad timestamp %q, expected RFC3339: %v", value, err)
	}
	return ts.UTC(), nil
}
