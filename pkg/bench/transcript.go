package bench

import (
	"fmt"
	"time"
)

// ObservationStatus classifies the outcome of one tool execution.
type ObservationStatus string

const (
	ObservationOK      ObservationStatus = "ok"
	ObservationError   ObservationStatus = "error"
	ObservationTimeout ObservationStatus = "timeout"
)

// Observation is the result of executing one tool invocation. Error and
// timeout observations carry a human-readable message in Text so the model
// can self-correct in the next round.
type Observation struct {
	Text      string            `json:"text"`
	Status    ObservationStatus `json:"status"`
	Truncated bool              `json:"truncated,omitempty"`
}

// ToolInvocation is one parsed tool request from a model response.
type ToolInvocation struct {
	Name      string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Turn roles within a transcript.
const (
	RoleModel = "model"
	RoleTool  = "tool"
)

// Turn is one entry in a transcript: either a model turn (content plus an
// optional invocation) or a tool turn carrying an observation.
type Turn struct {
	Role        string          `json:"role"`
	Content     string          `json:"content,omitempty"`
	Invocation  *ToolInvocation `json:"invocation,omitempty"`
	Observation *Observation    `json:"observation,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Transcript is the ordered, append-only conversation record. Order is
// semantically significant: it is replayed verbatim into each model call.
type Transcript []Turn

// AppendModel records a model turn.
func (tr Transcript) AppendModel(content string, inv *ToolInvocation) Transcript {
	return append(tr, Turn{
		Role:       RoleModel,
		Content:    content,
		Invocation: inv,
		Timestamp:  time.Now().UTC(),
	})
}

// AppendObservation records a tool turn.
func (tr Transcript) AppendObservation(obs Observation) Transcript {
	return append(tr, Turn{
		Role:        RoleTool,
		Observation: &obs,
		Timestamp:   time.Now().UTC(),
	})
}

// Validate checks structural integrity of a transcript.
func (tr Transcript) Validate() error {
	for i, turn := range tr {
		switch turn.Role {
		case RoleModel:
			// Content may be empty when the model emits a bare tool call.
		case RoleTool:
			if turn.Observation == nil {
				return fmt.Errorf("turn %d: tool turn without observation", i)
			}
		default:
			return fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}
	return nil
}
