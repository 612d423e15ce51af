package agent

import "github.com/LY-Tri/Spider2/pkg/toolexecutor"

// SpecsFromDefinitions converts registered tool definitions into the specs
// advertised to the model. The finish alias is folded into terminate.
func SpecsFromDefinitions(defs []toolexecutor.ToolDefinition) []ToolSpec {
	specs := make([]ToolSpec, 0, len(defs))
	for _, def := range defs {
		if def.Name == toolexecutor.FinishToolName {
			continue
		}

		properties := make(map[string]interface{})
		required := []string{}
		for _, param := range def.Parameters {
			properties[param.Name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		schema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}

		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return specs
}
