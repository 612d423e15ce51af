package cli

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LY-Tri/Spider2/internal/config"
	"github.com/LY-Tri/Spider2/internal/logger"
	"github.com/LY-Tri/Spider2/pkg/agent"
	"github.com/LY-Tri/Spider2/pkg/bench"
	"github.com/LY-Tri/Spider2/pkg/rollout"
	"github.com/LY-Tri/Spider2/pkg/toolexecutor"
	"github.com/LY-Tri/Spider2/pkg/toolserver"
)

var runFlags struct {
	tasks         string
	resourceRoot  string
	outputDir     string
	maxRounds     int
	numThreads    int
	rolloutNumber int
	model         string
	provider      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark over a task list",
	Long: `Run drives every (task, rollout) pair to a terminal result. Pairs with
an existing result file are skipped, so rerunning against the same
output directory resumes an interrupted run.`,
	RunE: runBenchmark,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.tasks, "tasks", "", "path to the JSONL task list")
	runCmd.Flags().StringVar(&runFlags.resourceRoot, "resource-root", "", "directory holding databases/ and documents/")
	runCmd.Flags().StringVar(&runFlags.outputDir, "output", "", "directory for result files")
	runCmd.Flags().IntVar(&runFlags.maxRounds, "max-rounds", 0, "tool rounds allowed per session")
	runCmd.Flags().IntVar(&runFlags.numThreads, "num-threads", 0, "concurrent sessions")
	runCmd.Flags().IntVar(&runFlags.rolloutNumber, "rollout-number", 0, "independent rollouts per task")
	runCmd.Flags().StringVar(&runFlags.model, "model", "", "model name")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "model provider (openai or anthropic)")

	rootCmd.AddCommand(runCmd)
}

func loadRunConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if runFlags.tasks != "" {
		cfg.Paths.Tasks = runFlags.tasks
	}
	if runFlags.resourceRoot != "" {
		cfg.Paths.ResourceRoot = runFlags.resourceRoot
	}
	if runFlags.outputDir != "" {
		cfg.Paths.OutputDir = runFlags.outputDir
	}
	if runFlags.maxRounds > 0 {
		cfg.Run.MaxRounds = runFlags.maxRounds
	}
	if runFlags.numThreads > 0 {
		cfg.Run.NumThreads = runFlags.numThreads
	}
	if runFlags.rolloutNumber > 0 {
		cfg.Run.RolloutNumber = runFlags.rolloutNumber
	}
	if runFlags.model != "" {
		cfg.Model.Name = runFlags.model
	}
	if runFlags.provider != "" {
		cfg.Model.Provider = runFlags.provider
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Paths.Tasks == "" {
		return nil, fmt.Errorf("task list path is required (--tasks)")
	}
	if cfg.Paths.ResourceRoot == "" {
		return nil, fmt.Errorf("resource root is required (--resource-root)")
	}
	if cfg.Paths.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required (--output)")
	}
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("model API key is required (config or provider env variable)")
	}

	return cfg, nil
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Unreadable task input is process-fatal.
	tasks, err := bench.LoadTasks(cfg.Paths.Tasks)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("task list is empty: %s", cfg.Paths.Tasks)
	}

	store, err := bench.NewStore(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	executor := toolexecutor.New(toolexecutor.Options{
		Timeout:   time.Duration(cfg.ToolServer.ToolTimeoutSec) * time.Second,
		OutputCap: cfg.ToolServer.OutputCap,
	})
	if err := toolexecutor.RegisterBuiltins(executor, cfg.Paths.ResourceRoot); err != nil {
		return err
	}
	tools := agent.SpecsFromDefinitions(executor.List())

	provider, err := agent.NewProvider(cfg.Model.Provider, cfg.Model.APIKey)
	if err != nil {
		return err
	}

	var dispatcher toolserver.Dispatcher
	var server *toolserver.Server

	if cfg.ToolServer.RemoteURL != "" {
		client := toolserver.NewClient(cfg.ToolServer.RemoteURL)
		if err := client.WaitReady(ctx, 10*time.Second); err != nil {
			return fmt.Errorf("tool server unavailable: %w", err)
		}
		dispatcher = client
	} else {
		server, err = toolserver.NewServer(toolserver.Options{
			Host:           cfg.ToolServer.Host,
			Port:           cfg.ToolServer.Port,
			WorkersPerTool: cfg.ToolServer.WorkersPerTool,
			QueueDepth:     cfg.ToolServer.QueueDepth,
		}, executor, zl)
		if err != nil {
			return fmt.Errorf("tool server failed to start: %w", err)
		}
		dispatcher = server
	}

	manager, err := rollout.NewManager(rollout.Options{
		NumThreads:    cfg.Run.NumThreads,
		RolloutNumber: cfg.Run.RolloutNumber,
		MaxRounds:     cfg.Run.MaxRounds,
		SystemPrompt:  cfg.Paths.SystemPrompt,
		Sampling: agent.SamplingConfig{
			Model:           cfg.Model.Name,
			Temperature:     cfg.Model.Temperature,
			TopP:            cfg.Model.TopP,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		},
		Retry: agent.RetryPolicy{MaxAttempts: cfg.Model.MaxRetries},
	}, store, dispatcher, provider, tools, zl)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if server != nil {
		// The HTTP boundary runs alongside the in-process dispatch so
		// health and metrics stay inspectable during a run.
		group.Go(func() error {
			if serveErr := server.Start(); serveErr != nil && serveErr != http.ErrServerClosed {
				return serveErr
			}
			return nil
		})
	}

	var summary rollout.Summary
	group.Go(func() error {
		defer func() {
			if server != nil {
				_ = server.Stop()
			}
		}()
		var runErr error
		summary, runErr = manager.Run(groupCtx, tasks)
		return runErr
	})

	if err := group.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"total=%d skipped=%d success=%d round_limit=%d errored=%d\n",
		summary.Total, summary.Skipped, summary.Success, summary.RoundLimit, summary.Errored)

	return nil
}
