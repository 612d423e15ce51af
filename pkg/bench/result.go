package bench

import (
	"fmt"
	"time"
)

// ResultStatus is the terminal outcome of one session.
type ResultStatus string

const (
	StatusSuccess    ResultStatus = "success"
	StatusRoundLimit ResultStatus = "round_limit"
	StatusError      ResultStatus = "error"
)

// Result is the write-once terminal record of one (task, rollout) session.
type Result struct {
	TaskID       string       `json:"task_id"`
	RolloutIndex int          `json:"rollout_index"`
	Status       ResultStatus `json:"status"`
	FinalAnswer  string       `json:"final_answer,omitempty"`
	Error        string       `json:"error,omitempty"`
	Rounds       int          `json:"rounds"`
	Transcript   Transcript   `json:"transcript"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	DurationMS   int64        `json:"duration_ms"`
}

// Key returns the unique identity of a result.
func (r Result) Key() string {
	return fmt.Sprintf("%s#%d", r.TaskID, r.RolloutIndex)
}

// Validate checks that a result is complete enough to persist.
func (r Result) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("result has empty task_id")
	}
	if r.RolloutIndex < 0 {
		return fmt.Errorf("result %s: rollout_index cannot be negative", r.TaskID)
	}
	switch r.Status {
	case StatusSuccess, StatusRoundLimit, StatusError:
	default:
		return fmt.Errorf("result %s: unknown status %q", r.Key(), r.Status)
	}
	if r.Status == StatusError && r.Error == "" {
		return fmt.Errorf("result %s: error status requires an error message", r.Key())
	}
	return nil
}
