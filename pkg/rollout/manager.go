package rollout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/LY-Tri/Spider2/internal/tracing"
	"github.com/LY-Tri/Spider2/pkg/agent"
	"github.com/LY-Tri/Spider2/pkg/bench"
	"github.com/LY-Tri/Spider2/pkg/toolserver"
)

// Options configures a benchmark run.
type Options struct {
	NumThreads    int // concurrent sessions
	RolloutNumber int // independent sessions per task
	MaxRounds     int
	SystemPrompt  string
	Sampling      agent.SamplingConfig
	Retry         agent.RetryPolicy
}

// Summary aggregates terminal outcomes of one run.
type Summary struct {
	Total      int `json:"total"`
	Skipped    int `json:"skipped"`
	Success    int `json:"success"`
	RoundLimit int `json:"round_limit"`
	Errored    int `json:"errored"`
}

// Manager drives the task list to completion with bounded parallelism and
// durable, resumable output.
type Manager struct {
	opts       Options
	store      *bench.Store
	dispatcher toolserver.Dispatcher
	provider   agent.ModelProvider
	tools      []agent.ToolSpec
	logger     zerolog.Logger
}

// NewManager wires a manager over a result store, a tool dispatcher, and a
// model provider.
func NewManager(opts Options, store *bench.Store, dispatcher toolserver.Dispatcher, provider agent.ModelProvider, tools []agent.ToolSpec, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if opts.NumThreads <= 0 {
		opts.NumThreads = 1
	}
	if opts.RolloutNumber <= 0 {
		opts.RolloutNumber = 1
	}
	if opts.MaxRounds <= 0 {
		return nil, fmt.Errorf("max rounds must be positive")
	}

	return &Manager{
		opts:       opts,
		store:      store,
		dispatcher: dispatcher,
		provider:   provider,
		tools:      tools,
		logger:     logger,
	}, nil
}

type sessionSpec struct {
	task         bench.Task
	rolloutIndex int
}

// Run executes rollout_number sessions per task across the worker pool.
// Session failures become persisted error results. Caller cancellation does
// not: cancelled and still-queued pairs are left without a result file so a
// later run picks them up.
func (m *Manager) Run(ctx context.Context, tasks []bench.Task) (Summary, error) {
	runID := tracing.NewRunID()
	ctx = tracing.WithRunID(ctx, runID)
	logger := m.logger.With().Str("run_id", runID).Logger()

	var summary Summary
	var mu sync.Mutex

	specs := make([]sessionSpec, 0, len(tasks)*m.opts.RolloutNumber)
	for _, task := range tasks {
		for r := 0; r < m.opts.RolloutNumber; r++ {
			summary.Total++
			if m.store.Exists(task.ID, r) {
				summary.Skipped++
				logger.Debug().
					Str("task_id", task.ID).
					Int("rollout_index", r).
					Msg("Result exists, skipping")
				continue
			}
			specs = append(specs, sessionSpec{task: task, rolloutIndex: r})
		}
	}

	logger.Info().
		Int("tasks", len(tasks)).
		Int("rollouts", m.opts.RolloutNumber).
		Int("pending", len(specs)).
		Int("skipped", summary.Skipped).
		Int("threads", m.opts.NumThreads).
		Msg("Starting benchmark run")

	runners := pool.New().
		WithMaxGoroutines(m.opts.NumThreads).
		WithErrors()

	for _, spec := range specs {
		spec := spec
		runners.Go(func() error {
			// Once the run is cancelled, queued specs are left untouched so
			// they stay pending for the next run.
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := m.runSession(ctx, spec)
			if err != nil {
				return err
			}

			mu.Lock()
			switch result.Status {
			case bench.StatusSuccess:
				summary.Success++
			case bench.StatusRoundLimit:
				summary.RoundLimit++
			case bench.StatusError:
				summary.Errored++
			}
			mu.Unlock()
			return nil
		})
	}

	err := runners.Wait()

	logger.Info().
		Int("total", summary.Total).
		Int("skipped", summary.Skipped).
		Int("success", summary.Success).
		Int("round_limit", summary.RoundLimit).
		Int("errored", summary.Errored).
		Msg("Benchmark run finished")

	return summary, err
}

// runSession builds one session, drives it to termination, and persists its
// result immediately so partial progress survives a crash.
func (m *Manager) runSession(ctx context.Context, spec sessionSpec) (bench.Result, error) {
	ctx = tracing.WithSessionKey(ctx, tracing.SessionKey(spec.task.ID, spec.rolloutIndex))
	logger := tracing.PropagateToLogger(ctx, m.logger)

	cfg := agent.SessionConfig{
		SystemPrompt: m.opts.SystemPrompt,
		Sampling:     m.opts.Sampling,
		MaxRounds:    m.opts.MaxRounds,
		Retry:        m.opts.Retry,
		Tools:        m.tools,
		ArgumentDefaults: map[string]map[string]interface{}{
			"execute_sql": {"database": spec.task.Database},
		},
	}

	session, err := agent.NewSession(spec.task, spec.rolloutIndex, cfg, m.provider, m.dispatcher, logger)
	if err != nil {
		// Construction failures still produce a persisted error result so
		// the pair is inspectable and not retried forever.
		result := bench.Result{
			TaskID:       spec.task.ID,
			RolloutIndex: spec.rolloutIndex,
			Status:       bench.StatusError,
			Error:        err.Error(),
		}
		return result, m.persist(result)
	}

	result, err := session.Run(ctx)
	if err != nil {
		return bench.Result{}, err
	}
	return result, m.persist(result)
}

func (m *Manager) persist(result bench.Result) error {
	err := m.store.Write(result)
	if err == nil {
		return nil
	}
	if errors.Is(err, bench.ErrResultExists) {
		// A concurrent or earlier run won the race; keep the first write.
		m.logger.Warn().Str("key", result.Key()).Msg("Result already persisted, keeping existing")
		return nil
	}
	m.logger.Error().Err(err).Str("key", result.Key()).Msg("Failed to persist result")
	return err
}
