package toolserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LY-Tri/Spider2/internal/metrics"
	"github.com/LY-Tri/Spider2/pkg/bench"
	"github.com/LY-Tri/Spider2/pkg/toolexecutor"
)

// Dispatcher is the boundary agent sessions call tools through. Both the
// in-process server and the HTTP client satisfy it.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error)
}

// Options configures the tool server.
type Options struct {
	Host           string
	Port           int
	WorkersPerTool int // pool size per tool, fixed for the server's lifetime
	QueueDepth     int // waiters allowed beyond pool capacity
}

// DefaultOptions returns the defaults used when fields are zero.
func DefaultOptions() Options {
	return Options{
		Host:           "127.0.0.1",
		Port:           8321,
		WorkersPerTool: 4,
		QueueDepth:     64,
	}
}

// Server multiplexes concurrent tool requests across per-tool bounded
// worker pools built on a single executor.
type Server struct {
	opts     Options
	executor *toolexecutor.Executor
	pools    map[string]*workerPool
	logger   zerolog.Logger

	server         *http.Server
	inFlightReqs   sync.WaitGroup
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	startTime      time.Time
}

// NewServer builds one pool per registered tool. The tool set and pool
// sizes are fixed at construction; the terminate signal gets no pool since
// sessions intercept it before dispatch.
func NewServer(opts Options, executor *toolexecutor.Executor, logger zerolog.Logger) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	def := DefaultOptions()
	if opts.Host == "" {
		opts.Host = def.Host
	}
	if opts.Port == 0 {
		opts.Port = def.Port
	}
	if opts.WorkersPerTool <= 0 {
		opts.WorkersPerTool = def.WorkersPerTool
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}

	pools := make(map[string]*workerPool)
	for _, toolDef := range executor.List() {
		if toolexecutor.IsTerminate(toolDef.Name) {
			continue
		}
		pools[toolDef.Name] = newWorkerPool(toolDef.Name, opts.WorkersPerTool, opts.QueueDepth)
	}

	logger.Info().
		Int("tools", len(pools)).
		Int("workers_per_tool", opts.WorkersPerTool).
		Int("queue_depth", opts.QueueDepth).
		Msg("Tool server initialized")

	return &Server{
		opts:      opts,
		executor:  executor,
		pools:     pools,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Tools returns the names of tools that have a pool, sorted.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one invocation through its tool's pool. Unknown tools and a
// saturated queue come back as error observations without consuming a slot;
// the returned error is non-nil only when the caller's context ended before
// a slot was acquired.
func (s *Server) Dispatch(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error) {
	pool, known := s.pools[inv.Name]
	if !known {
		s.logger.Warn().Str("tool", inv.Name).Msg("Unknown tool requested")
		return bench.Observation{
			Text:   fmt.Sprintf("EXECUTION RESULT of [%s]:\nunknown tool: %s", inv.Name, inv.Name),
			Status: bench.ObservationError,
		}, nil
	}

	if err := pool.acquire(ctx); err != nil {
		if err == ErrResourceExhausted {
			return bench.Observation{
				Text: fmt.Sprintf(
					"EXECUTION RESULT of [%s]:\ntool is busy: too many queued requests, retry shortly",
					inv.Name,
				),
				Status: bench.ObservationError,
			}, nil
		}
		return bench.Observation{}, err
	}
	defer pool.release()

	metrics.ToolStarted(inv.Name)
	defer metrics.ToolFinished(inv.Name)

	start := time.Now()
	obs := s.executor.Execute(ctx, inv.Name, inv.Arguments)
	metrics.RecordToolExecution(inv.Name, string(obs.Status), time.Since(start))

	return obs, nil
}

// Start serves the HTTP boundary and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("host", s.opts.Host).
		Int("port", s.opts.Port).
		Msg("Starting tool server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start tool server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down tool server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown drain timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tool server: %w", err)
	}

	s.logger.Info().Msg("Tool server stopped")
	return nil
}
