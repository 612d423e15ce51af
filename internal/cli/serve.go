package cli

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LY-Tri/Spider2/internal/config"
	"github.com/LY-Tri/Spider2/internal/logger"
	"github.com/LY-Tri/Spider2/pkg/toolexecutor"
	"github.com/LY-Tri/Spider2/pkg/toolserver"
)

var serveFlags struct {
	resourceRoot string
	host         string
	port         int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone tool execution server",
	Long: `Serve starts the tool execution service on its own, so multiple
benchmark runs can share one server via the tool_server.remote_url
setting.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.resourceRoot, "resource-root", "", "directory holding databases/ and documents/")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "bind address")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if serveFlags.resourceRoot != "" {
		cfg.Paths.ResourceRoot = serveFlags.resourceRoot
	}
	if serveFlags.host != "" {
		cfg.ToolServer.Host = serveFlags.host
	}
	if serveFlags.port > 0 {
		cfg.ToolServer.Port = serveFlags.port
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Paths.ResourceRoot == "" {
		return fmt.Errorf("resource root is required (--resource-root)")
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

	executor := toolexecutor.New(toolexecutor.Options{
		Timeout:   time.Duration(cfg.ToolServer.ToolTimeoutSec) * time.Second,
		OutputCap: cfg.ToolServer.OutputCap,
	})
	if err := toolexecutor.RegisterBuiltins(executor, cfg.Paths.ResourceRoot); err != nil {
		return err
	}

	server, err := toolserver.NewServer(toolserver.Options{
		Host:           cfg.ToolServer.Host,
		Port:           cfg.ToolServer.Port,
		WorkersPerTool: cfg.ToolServer.WorkersPerTool,
		QueueDepth:     cfg.ToolServer.QueueDepth,
	}, executor, zl)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if serveErr := server.Start(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zl.Info().Msg("shutting down tool server")
		return server.Stop()
	}
}
