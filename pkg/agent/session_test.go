package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func testTask() bench.Task {
	return bench.Task{
		ID:       "sf001",
		Database: "northwind",
		Goal:     "Count the orders placed in 1997.",
	}
}

// scriptedProvider replays a fixed sequence of responses.
type scriptedProvider struct {
	responses []ModelResponse
	errs      []error
	calls     int
	mu        sync.Mutex
}

func (p *scriptedProvider) Call(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return nil, fmt.Errorf("scripted provider exhausted at call %d", i)
	}
	resp := p.responses[i]
	return &resp, nil
}

func (p *scriptedProvider) Provider() string { return "scripted" }

func sqlCall(stmt string) ModelResponse {
	return ModelResponse{
		Content: "Running a query.",
		ToolCalls: []bench.ToolInvocation{{
			Name:      "execute_sql",
			Arguments: map[string]interface{}{"sql": stmt},
		}},
	}
}

func terminateCall(answer string) ModelResponse {
	return ModelResponse{
		ToolCalls: []bench.ToolInvocation{{
			Name:      "terminate",
			Arguments: map[string]interface{}{"answer": answer},
		}},
	}
}

// recordingDispatcher returns scripted observations and records invocations.
type recordingDispatcher struct {
	observations []bench.Observation
	errs         []error
	invocations  []bench.ToolInvocation
	mu           sync.Mutex
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := len(d.invocations)
	d.invocations = append(d.invocations, inv)
	if i < len(d.errs) && d.errs[i] != nil {
		return bench.Observation{}, d.errs[i]
	}
	if i < len(d.observations) {
		return d.observations[i], nil
	}
	return bench.Observation{Text: "ok", Status: bench.ObservationOK}, nil
}

func newTestSession(t *testing.T, cfg SessionConfig, provider ModelProvider, dispatcher *recordingDispatcher) *Session {
	t.Helper()
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 10
	}
	s, err := NewSession(testTask(), 0, cfg, provider, dispatcher, testLogger())
	require.NoError(t, err)
	return s
}

func TestSessionSuccess(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT count(*) FROM orders"),
		terminateCall("830"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "830", result.FinalAnswer)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, StateTerminated, session.State())
	require.Len(t, dispatcher.invocations, 1)
	assert.Equal(t, "execute_sql", dispatcher.invocations[0].Name)
	assert.NoError(t, result.Transcript.Validate())
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestSessionRoundLimit(t *testing.T) {
	// The model never terminates; with three rounds allowed, exactly three
	// calls are dispatched and the fourth never reaches a tool.
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT 1"),
		sqlCall("SELECT 2"),
		sqlCall("SELECT 3"),
		sqlCall("SELECT 4"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{MaxRounds: 3}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusRoundLimit, result.Status)
	assert.Equal(t, 3, result.Rounds)
	assert.Equal(t, 3, session.Rounds())
	assert.Len(t, dispatcher.invocations, 3)
	assert.Empty(t, result.FinalAnswer)
}

func TestSessionToolFailureRecovery(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT * FROM oders"),
		sqlCall("SELECT * FROM orders"),
		terminateCall("fixed"),
	}}
	dispatcher := &recordingDispatcher{observations: []bench.Observation{
		{Text: "EXECUTION RESULT of [execute_sql]:\nSQL Error: no such table: oders", Status: bench.ObservationError},
		{Text: "EXECUTION RESULT of [execute_sql]:\nQuery executed successfully", Status: bench.ObservationOK},
	}}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	// A failed tool stays in the conversation; the session does not abort.
	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Rounds)

	var statuses []bench.ObservationStatus
	for _, turn := range result.Transcript {
		if turn.Role == bench.RoleTool {
			statuses = append(statuses, turn.Observation.Status)
		}
	}
	assert.Equal(t, []bench.ObservationStatus{bench.ObservationError, bench.ObservationOK}, statuses)
}

func TestSessionParseErrorReprompt(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		{Content: "I think the answer is 42."},
		terminateCall("42"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "42", result.FinalAnswer)
	assert.Empty(t, dispatcher.invocations)

	// The malformed turn and the corrective instruction are both recorded.
	var corrected bool
	for _, turn := range result.Transcript {
		if turn.Role == bench.RoleTool && turn.Observation.Text == correctiveInstruction {
			corrected = true
		}
	}
	assert.True(t, corrected)
}

func TestSessionConsecutiveParseErrorsFatal(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		{Content: "no action here"},
		{Content: "still no action"},
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusError, result.Status)
	assert.Contains(t, result.Error, "malformed model action")
	assert.Equal(t, 0, result.Rounds)
}

func TestSessionParseFailureCounterResets(t *testing.T) {
	// Malformed, recovered, malformed again: the counter restarts after a
	// valid action, so the second malformed response gets its own re-prompt.
	provider := &scriptedProvider{responses: []ModelResponse{
		{Content: "no action"},
		sqlCall("SELECT 1"),
		{Content: "no action again"},
		terminateCall("done"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "done", result.FinalAnswer)
}

func TestSessionMultipleToolCallsIsParseError(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		{ToolCalls: []bench.ToolInvocation{
			{Name: "execute_sql"},
			{Name: "read_document"},
		}},
		terminateCall("one at a time"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Empty(t, dispatcher.invocations)
}

func TestSessionTerminateAnswerFallsBackToContent(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		{
			Content: "The total is 830.",
			ToolCalls: []bench.ToolInvocation{{
				Name:      "terminate",
				Arguments: map[string]interface{}{},
			}},
		},
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "The total is 830.", result.FinalAnswer)
}

func TestSessionFinishAliasTerminates(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		{ToolCalls: []bench.ToolInvocation{{
			Name:      "finish",
			Arguments: map[string]interface{}{"answer": "done"},
		}}},
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "done", result.FinalAnswer)
}

func TestSessionModelFailureIsTerminal(t *testing.T) {
	provider := &scriptedProvider{errs: []error{
		fmt.Errorf("invalid api key"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{Retry: RetryPolicy{MaxAttempts: 1}}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusError, result.Status)
	assert.Contains(t, result.Error, "invalid api key")
	assert.Equal(t, 1, provider.calls)
}

func TestSessionDispatcherTransportFailureSurvives(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT 1"),
		terminateCall("recovered"),
	}}
	dispatcher := &recordingDispatcher{errs: []error{
		fmt.Errorf("tool server request failed: connection refused"),
	}}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bench.StatusSuccess, result.Status)
	assert.Equal(t, "recovered", result.FinalAnswer)
}

func TestSessionArgumentDefaultsInjected(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT 1"),
		terminateCall("done"),
	}}
	dispatcher := &recordingDispatcher{}

	cfg := SessionConfig{
		ArgumentDefaults: map[string]map[string]interface{}{
			"execute_sql": {"database": "northwind"},
		},
	}
	session := newTestSession(t, cfg, provider, dispatcher)
	_, err := session.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, dispatcher.invocations, 1)
	assert.Equal(t, "northwind", dispatcher.invocations[0].Arguments["database"])
	assert.Equal(t, "SELECT 1", dispatcher.invocations[0].Arguments["sql"])
}

func TestSessionRunsOnlyOnce(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		terminateCall("first"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	_, err := session.Run(context.Background())
	require.NoError(t, err)

	_, err = session.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already ran")
}

func TestSessionCancelledContextEmitsNoResult(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		terminateCall("never reached"),
	}}
	dispatcher := &recordingDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)
	_, err := session.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.calls)

	// Cancellation is not a terminal outcome, but the session cannot rerun.
	assert.NotEqual(t, StateTerminated, session.State())
	_, err = session.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already ran")
}

func TestSessionCancelledDuringToolCallEmitsNoResult(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT 1"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &cancellingDispatcher{cancel: cancel}

	s, err := NewSession(testTask(), 0, SessionConfig{MaxRounds: 10}, provider, dispatcher, testLogger())
	require.NoError(t, err)

	_, err = s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingDispatcher cancels the run mid-dispatch, as a signal would.
type cancellingDispatcher struct {
	cancel context.CancelFunc
}

func (d *cancellingDispatcher) Dispatch(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error) {
	d.cancel()
	return bench.Observation{}, ctx.Err()
}

func TestNewSessionValidation(t *testing.T) {
	provider := &scriptedProvider{}
	dispatcher := &recordingDispatcher{}

	_, err := NewSession(bench.Task{}, 0, SessionConfig{MaxRounds: 5}, provider, dispatcher, testLogger())
	assert.Error(t, err)

	_, err = NewSession(testTask(), 0, SessionConfig{MaxRounds: 5}, nil, dispatcher, testLogger())
	assert.Error(t, err)

	_, err = NewSession(testTask(), 0, SessionConfig{MaxRounds: 5}, provider, nil, testLogger())
	assert.Error(t, err)

	_, err = NewSession(testTask(), 0, SessionConfig{MaxRounds: 0}, provider, dispatcher, testLogger())
	assert.Error(t, err)
}

func TestSessionSnapshot(t *testing.T) {
	provider := &scriptedProvider{responses: []ModelResponse{
		sqlCall("SELECT 1"),
		terminateCall("done"),
	}}
	dispatcher := &recordingDispatcher{}

	session := newTestSession(t, SessionConfig{}, provider, dispatcher)

	snap := session.Snapshot()
	assert.Equal(t, StateInit, snap.State)
	assert.Empty(t, snap.Transcript)

	_, err := session.Run(context.Background())
	require.NoError(t, err)

	snap = session.Snapshot()
	assert.Equal(t, StateTerminated, snap.State)
	assert.Equal(t, 1, snap.Rounds)
	assert.NotEmpty(t, snap.Transcript)
}
