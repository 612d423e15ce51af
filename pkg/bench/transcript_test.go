package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppendOrder(t *testing.T) {
	var tr Transcript

	tr = tr.AppendModel("thinking", &ToolInvocation{Name: "execute_sql"})
	tr = tr.AppendObservation(Observation{Text: "10 rows", Status: ObservationOK})
	tr = tr.AppendModel("done", nil)

	require.Len(t, tr, 3)
	assert.Equal(t, RoleModel, tr[0].Role)
	assert.Equal(t, "execute_sql", tr[0].Invocation.Name)
	assert.Equal(t, RoleTool, tr[1].Role)
	assert.Equal(t, "10 rows", tr[1].Observation.Text)
	assert.Equal(t, RoleModel, tr[2].Role)
	assert.Nil(t, tr[2].Invocation)
}

func TestTranscriptValidate(t *testing.T) {
	valid := Transcript{
		{Role: RoleModel, Content: "call the tool"},
		{Role: RoleTool, Observation: &Observation{Status: ObservationOK}},
	}
	assert.NoError(t, valid.Validate())

	missingObs := Transcript{{Role: RoleTool}}
	err := missingObs.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without observation")

	badRole := Transcript{{Role: "user"}}
	err = badRole.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestResultKey(t *testing.T) {
	r := Result{TaskID: "sf001", RolloutIndex: 2}
	assert.Equal(t, "sf001#2", r.Key())
}

func TestResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		wantErr string
	}{
		{"success", Result{TaskID: "sf001", Status: StatusSuccess}, ""},
		{"round limit", Result{TaskID: "sf001", Status: StatusRoundLimit}, ""},
		{"error with message", Result{TaskID: "sf001", Status: StatusError, Error: "boom"}, ""},
		{"error without message", Result{TaskID: "sf001", Status: StatusError}, "requires an error message"},
		{"no task id", Result{Status: StatusSuccess}, "empty task_id"},
		{"negative index", Result{TaskID: "sf001", RolloutIndex: -1, Status: StatusSuccess}, "negative"},
		{"unknown status", Result{TaskID: "sf001", Status: "done"}, "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
