package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/packflow/packflow/internal/config"
	"github.com/packflow/packflow/internal/coordination"
	"github.com/packflow/packflow/internal/event"
	"github.com/packflow/packflow/internal/logging"
	"github.com/packflow/packflow/internal/orchestrator"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
	"github.com/packflow/packflow/internal/runner"
	"github.com/packflow/packflow/internal/tui"
)

var (
	runWorkers    int
	runWorkDir    string
	runAutoAccept bool
	runNoMonitor  bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a feature plan with local workers",
	Long: `Validate the plan, then dispatch its packages to local workers in
dependency order. Each worker acquires the package's locks, runs its
verification commands, and submits a result record. Failures retry
within the package's budget and trip beyond it, cancelling downstream
packages. The integration package runs only once the gate passes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent workers (default from config)")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", ".", "directory verification commands run in")
	runCmd.Flags().BoolVar(&runAutoAccept, "auto-accept-reviews", false, "record empty reviews so the gate can pass unattended")
	runCmd.Flags().BoolVar(&runNoMonitor, "no-monitor", false, "disable the live terminal monitor")
	rootCmd.AddCommand(runCmd)
}

// newBackend builds the coordination backend the config names.
func newBackend(cfg *config.Config) (coordination.Backend, error) {
	switch cfg.Coordination.Backend {
	case "memory":
		return coordination.NewMemory(), nil
	case "dir":
		return coordination.NewDir(cfg.Coordination.LockDir)
	default:
		return nil, fmt.Errorf("unknown coordination backend %q", cfg.Coordination.Backend)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fp, err := plan.Load(args[0])
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.NewLogger(cfg.Paths.RunDir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return err
		}
		defer log.Close()
	}

	bus := event.NewBus()
	rt, err := orchestrator.New(fp, backend,
		orchestrator.WithBus(bus),
		orchestrator.WithLogger(log),
		orchestrator.WithBreakerTimeout(cfg.Run.DefaultTimeout()),
	)
	if err != nil {
		return err
	}

	workers := runWorkers
	if workers <= 0 {
		workers = cfg.Run.MaxParallel
	}
	if workers <= 0 {
		workers = len(fp.Packages)
	}

	r := runner.New(rt, backend, fp,
		runner.WithWorkers(workers),
		runner.WithWorkDir(runWorkDir),
		runner.WithStore(result.NewStore(cfg.Paths.RunDir)),
		runner.WithLogger(log),
		runner.WithAutoAcceptReviews(runAutoAccept),
		runner.WithSweepInterval(cfg.Run.HeartbeatPollInterval()),
	)

	monitor := cfg.Monitor.Enabled && !runNoMonitor && isTerminal()

	if monitor {
		model := tui.NewModel(rt, bus, cfg.Monitor.RefreshInterval(), cfg.Monitor.MaxEventLines)
		program := tea.NewProgram(model)

		runErr := make(chan error, 1)
		go func() {
			runErr <- r.Run(cmd.Context())
			program.Quit()
		}()

		if _, err := program.Run(); err != nil {
			return err
		}
		if err := <-runErr; err != nil {
			return err
		}
	} else if err := r.Run(cmd.Context()); err != nil {
		return err
	}

	return printSummary(cmd, rt)
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
