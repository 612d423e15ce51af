package toolexecutor

import "context"

// Final-answer tool names. The agent session intercepts these before
// dispatch; they are advertised to the model but never reach a worker pool.
const (
	TerminateToolName = "terminate"
	FinishToolName    = "finish"
)

// TerminateDefinition describes the final-answer tool advertised to the
// model. Its handler exists only so the definition validates; sessions
// intercept the call.
func TerminateDefinition() ToolDefinition {
	return ToolDefinition{
		Name: TerminateToolName,
		Description: "Submit the final answer for the task. Call this exactly " +
			"once, when you are confident in the result.",
		Parameters: []ToolParameter{
			{Name: "answer", Type: "string", Description: "The final answer", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			answer, _ := args["answer"].(string)
			return answer, nil
		},
	}
}

// IsTerminate reports whether a tool name is a final-answer signal.
func IsTerminate(name string) bool {
	return name == TerminateToolName || name == FinishToolName
}

// RegisterBuiltins registers the benchmark's standard tools over a resource
// root: SQL execution, document access, step planning, and the terminate
// signal.
func RegisterBuiltins(exec *Executor, resourceRoot string) error {
	sqlTool := NewSQLTool(resourceRoot)
	docTool := NewDocumentTool(resourceRoot)
	planTool := NewPlanTool()

	for _, def := range []ToolDefinition{
		sqlTool.Definition(),
		docTool.ReadDefinition(),
		docTool.ListDefinition(),
		planTool.Definition(),
		TerminateDefinition(),
	} {
		if err := exec.Register(def); err != nil {
			return err
		}
	}
	return nil
}
