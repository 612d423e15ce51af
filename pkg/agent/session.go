package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LY-Tri/Spider2/internal/metrics"
	"github.com/LY-Tri/Spider2/pkg/bench"
	"github.com/LY-Tri/Spider2/pkg/toolexecutor"
	"github.com/LY-Tri/Spider2/pkg/toolserver"
)

// State is the session's position in its lifecycle.
type State string

const (
	StateInit          State = "INIT"
	StateAwaitingModel State = "AWAITING_MODEL"
	StateAwaitingTool  State = "AWAITING_TOOL"
	StateTerminated    State = "TERMINATED"
)

// correctiveInstruction is appended to the transcript after a malformed
// model response; a second consecutive malformed response is fatal.
const correctiveInstruction = "Your previous response was not a valid action. " +
	"Respond with exactly one tool call, or call the terminate tool with your final answer."

// SessionConfig configures one session's conversation.
type SessionConfig struct {
	SystemPrompt string
	Sampling     SamplingConfig
	MaxRounds    int
	Retry        RetryPolicy
	Tools        []ToolSpec
	// ArgumentDefaults fills absent arguments per tool before dispatch,
	// e.g. the task's database for execute_sql.
	ArgumentDefaults map[string]map[string]interface{}
}

// Session is the per-(task, rollout) state machine driving one bounded
// conversation. It owns its transcript exclusively and is not safe for
// concurrent use; each session runs on exactly one goroutine.
type Session struct {
	task         bench.Task
	rolloutIndex int
	cfg          SessionConfig
	provider     ModelProvider
	dispatcher   toolserver.Dispatcher
	logger       zerolog.Logger

	state         State
	rounds        int
	transcript    bench.Transcript
	parseFailures int
	result        *bench.Result
}

// NewSession creates a session in INIT.
func NewSession(task bench.Task, rolloutIndex int, cfg SessionConfig, provider ModelProvider, dispatcher toolserver.Dispatcher, logger zerolog.Logger) (*Session, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if cfg.MaxRounds <= 0 {
		return nil, fmt.Errorf("max rounds must be positive")
	}

	return &Session{
		task:         task,
		rolloutIndex: rolloutIndex,
		cfg:          cfg,
		provider:     provider,
		dispatcher:   dispatcher,
		logger: logger.With().
			Str("task_id", task.ID).
			Int("rollout_index", rolloutIndex).
			Logger(),
		state: StateInit,
	}, nil
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Rounds returns the number of dispatched tool rounds so far.
func (s *Session) Rounds() int {
	return s.rounds
}

// Snapshot is a serializable view of a session's conversation state.
type Snapshot struct {
	TaskID       string           `json:"task_id"`
	RolloutIndex int              `json:"rollout_index"`
	State        State            `json:"state"`
	Rounds       int              `json:"rounds"`
	Transcript   bench.Transcript `json:"transcript"`
}

// Snapshot captures the session's current state and transcript.
func (s *Session) Snapshot() Snapshot {
	transcript := make(bench.Transcript, len(s.transcript))
	copy(transcript, s.transcript)
	return Snapshot{
		TaskID:       s.task.ID,
		RolloutIndex: s.rolloutIndex,
		State:        s.state,
		Rounds:       s.rounds,
		Transcript:   transcript,
	}
}

// goal renders the opening user message from the task.
func (s *Session) goal() string {
	var b strings.Builder
	b.WriteString(s.task.Goal)
	if s.task.Database != "" {
		fmt.Fprintf(&b, "\n\nThe database for this task is %q.", s.task.Database)
	}
	if len(s.task.Documents) > 0 {
		fmt.Fprintf(&b, "\nReference documents: %s.", strings.Join(s.task.Documents, ", "))
	}
	return b.String()
}

// Run drives the conversation to termination and returns the terminal
// result. A session runs at most once; its result is emitted exactly once.
// Caller cancellation is not a terminal outcome: Run returns the context
// error and no result, so the pair stays eligible for a later resume.
func (s *Session) Run(ctx context.Context) (bench.Result, error) {
	if s.state != StateInit {
		return bench.Result{}, fmt.Errorf("session %s#%d already ran", s.task.ID, s.rolloutIndex)
	}

	metrics.SessionStarted()
	startedAt := time.Now().UTC()
	s.logger.Info().Int("max_rounds", s.cfg.MaxRounds).Msg("Session started")

	for s.state != StateTerminated {
		s.state = StateAwaitingModel
		if err := ctx.Err(); err != nil {
			return s.abort(err)
		}
		response, err := s.callModel(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.abort(ctx.Err())
			}
			s.logger.Error().Err(err).Msg("Model call retries exhausted")
			s.terminate(bench.StatusError, "", err.Error())
			break
		}

		answer, invocation, parseErr := s.parseAction(response)
		if parseErr != nil {
			s.handleParseError(response, parseErr)
			continue
		}
		s.parseFailures = 0

		if invocation == nil {
			s.transcript = s.transcript.AppendModel(response.Content, &bench.ToolInvocation{
				Name:      toolexecutor.TerminateToolName,
				Arguments: map[string]interface{}{"answer": answer},
			})
			s.terminate(bench.StatusSuccess, answer, "")
			break
		}

		// A new tool round is about to start; stop here once the budget
		// is spent so the limit-hitting call is never dispatched.
		if s.rounds+1 > s.cfg.MaxRounds {
			s.transcript = s.transcript.AppendModel(response.Content, invocation)
			s.logger.Info().Int("rounds", s.rounds).Msg("Round limit reached")
			s.terminate(bench.StatusRoundLimit, "", "")
			break
		}
		s.rounds++
		s.transcript = s.transcript.AppendModel(response.Content, invocation)

		s.state = StateAwaitingTool
		obs, err := s.dispatchTool(ctx, *invocation)
		if err != nil {
			// dispatchTool fails only on caller cancellation.
			return s.abort(err)
		}
		s.transcript = s.transcript.AppendObservation(obs)
	}

	finishedAt := time.Now().UTC()
	s.result.StartedAt = startedAt
	s.result.FinishedAt = finishedAt
	s.result.DurationMS = finishedAt.Sub(startedAt).Milliseconds()

	metrics.SessionFinished(string(s.result.Status), s.rounds)
	s.logger.Info().
		Str("status", string(s.result.Status)).
		Int("rounds", s.rounds).
		Dur("duration", finishedAt.Sub(startedAt)).
		Msg("Session terminated")

	return *s.result, nil
}

// callModel serializes the transcript and calls the provider under the
// retry policy.
func (s *Session) callModel(ctx context.Context) (*ModelResponse, error) {
	request := ModelRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		Goal:         s.goal(),
		Transcript:   s.transcript,
		Tools:        s.cfg.Tools,
		Sampling:     s.cfg.Sampling,
	}

	var response *ModelResponse
	attempts := 0
	err := s.cfg.Retry.Do(ctx, s.logger,
		func() error {
			attempts++
			start := time.Now()
			resp, callErr := s.provider.Call(ctx, request)
			if callErr != nil {
				metrics.RecordModelCall(s.provider.Provider(), "error", time.Since(start))
				return callErr
			}
			metrics.RecordModelCall(s.provider.Provider(), "ok", time.Since(start))
			response = resp
			return nil
		},
		func() { metrics.RecordModelRetry(s.provider.Provider()) },
	)
	if err != nil {
		return nil, &ModelCallError{Provider: s.provider.Provider(), Attempts: attempts, Err: err}
	}
	return response, nil
}

// parseAction classifies a model response as a final answer, a single tool
// invocation, or a parse error.
func (s *Session) parseAction(response *ModelResponse) (answer string, inv *bench.ToolInvocation, err error) {
	switch len(response.ToolCalls) {
	case 0:
		return "", nil, &ParseError{Reason: "response contains no tool call"}
	case 1:
	default:
		return "", nil, &ParseError{Reason: fmt.Sprintf("response contains %d tool calls, expected one", len(response.ToolCalls))}
	}

	call := response.ToolCalls[0]
	if toolexecutor.IsTerminate(call.Name) {
		answer, _ := call.Arguments["answer"].(string)
		if answer == "" {
			answer = strings.TrimSpace(response.Content)
		}
		if answer == "" {
			return "", nil, &ParseError{Reason: "terminate call carries no answer"}
		}
		return answer, nil, nil
	}

	return "", &bench.ToolInvocation{Name: call.Name, Arguments: call.Arguments}, nil
}

// handleParseError appends the malformed turn plus a corrective instruction;
// the second consecutive failure terminates the session.
func (s *Session) handleParseError(response *ModelResponse, parseErr error) {
	s.transcript = s.transcript.AppendModel(response.Content, nil)
	s.parseFailures++

	if s.parseFailures >= 2 {
		s.logger.Warn().Err(parseErr).Msg("Second consecutive malformed action")
		s.terminate(bench.StatusError, "", parseErr.Error())
		return
	}

	s.logger.Debug().Err(parseErr).Msg("Malformed action, issuing corrective re-prompt")
	s.transcript = s.transcript.AppendObservation(bench.Observation{
		Text:   correctiveInstruction,
		Status: bench.ObservationError,
	})
}

// dispatchTool sends one invocation to the tool server. Tool failures come
// back as observations and stay in the conversation; only caller
// cancellation is fatal.
func (s *Session) dispatchTool(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error) {
	if defaults, ok := s.cfg.ArgumentDefaults[inv.Name]; ok {
		if inv.Arguments == nil {
			inv.Arguments = map[string]interface{}{}
		}
		for key, value := range defaults {
			if _, present := inv.Arguments[key]; !present {
				inv.Arguments[key] = value
			}
		}
	}

	obs, err := s.dispatcher.Dispatch(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			return bench.Observation{}, err
		}
		// Transport-level failure: keep the session alive, let the model
		// see the failure and retry.
		s.logger.Warn().Err(err).Str("tool", inv.Name).Msg("Tool dispatch failed")
		return bench.Observation{
			Text:   fmt.Sprintf("EXECUTION RESULT of [%s]:\ntool dispatch failed: %v", inv.Name, err),
			Status: bench.ObservationError,
		}, nil
	}
	return obs, nil
}

// abort ends a cancelled session without emitting a result. The state is no
// longer INIT, so the session cannot be rerun, but nothing is persisted and
// the (task, rollout) pair remains pending for the next run.
func (s *Session) abort(cause error) (bench.Result, error) {
	metrics.SessionFinished("cancelled", s.rounds)
	s.logger.Info().Int("rounds", s.rounds).Err(cause).Msg("Session cancelled")
	return bench.Result{}, fmt.Errorf("session %s#%d cancelled: %w", s.task.ID, s.rolloutIndex, cause)
}

// terminate is absorbing: the first call fixes the result, later calls are
// ignored.
func (s *Session) terminate(status bench.ResultStatus, answer, errMsg string) {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated

	transcript := make(bench.Transcript, len(s.transcript))
	copy(transcript, s.transcript)

	s.result = &bench.Result{
		TaskID:       s.task.ID,
		RolloutIndex: s.rolloutIndex,
		Status:       status,
		FinalAnswer:  answer,
		Error:        errMsg,
		Rounds:       s.rounds,
		Transcript:   transcript,
	}
}
