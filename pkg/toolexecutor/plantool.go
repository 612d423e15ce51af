package toolexecutor

import (
	"context"
	"fmt"
	"strings"
)

// PlanTool records the model's intended next sub-query step before it
// generates SQL. The step is echoed back as a confirmation; nothing is
// executed, the value is the traceability left in the transcript.
type PlanTool struct{}

// NewPlanTool creates the planning tool.
func NewPlanTool() *PlanTool {
	return &PlanTool{}
}

// Definition describes the plan_step tool.
func (t *PlanTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "plan_step",
		Description: "Record the next sub-query step before generating its SQL. " +
			"Call this iteratively to structure a multi-step solution.",
		Parameters: []ToolParameter{
			{Name: "step_description", Type: "string", Description: "What this step will accomplish", Required: true},
			{Name: "step_number", Type: "string", Description: "Optional step number for tracking", Required: false},
			{Name: "depends_on", Type: "string", Description: "Which previous steps or temp tables this depends on", Required: false},
			{Name: "rationale", Type: "string", Description: "Why this step is needed based on previous results", Required: false},
		},
		Handler: t.Record,
	}
}

// Record confirms the planned step and prompts the model to proceed.
func (t *PlanTool) Record(ctx context.Context, args map[string]interface{}) (string, error) {
	description, _ := args["step_description"].(string)
	if strings.TrimSpace(description) == "" {
		return "ERROR: 'step_description' is a required parameter for [plan_step]. Please provide it.", nil
	}

	stepNumber, _ := args["step_number"].(string)
	if stepNumber == "" {
		stepNumber = "N"
	}
	dependsOn, _ := args["depends_on"].(string)
	if dependsOn == "" {
		dependsOn = "None"
	}
	rationale, _ := args["rationale"].(string)
	if rationale == "" {
		rationale = "Initial step"
	}

	return fmt.Sprintf("PLAN RECORDED:\nStep %s: %s\nDependencies: %s\nRationale: %s\n\n"+
		"Now generate the SQL for this step using execute_sql.\n"+
		"If you need to check schema details first, use read_document.",
		stepNumber, description, dependsOn, rationale), nil
}
