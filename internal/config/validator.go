package config

import "fmt"

// Validate checks the invariants a run cannot start without. Path fields
// are validated by the commands that use them, since serve and run need
// different subsets.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider must be openai or anthropic, got %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be in [0, 2]")
	}
	if c.Model.TopP < 0 || c.Model.TopP > 1 {
		return fmt.Errorf("model.top_p must be in [0, 1]")
	}
	if c.Model.MaxOutputTokens < 0 {
		return fmt.Errorf("model.max_output_tokens cannot be negative")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("model.max_retries cannot be negative")
	}

	if c.Run.MaxRounds <= 0 {
		return fmt.Errorf("run.max_rounds must be positive")
	}
	if c.Run.NumThreads <= 0 {
		return fmt.Errorf("run.num_threads must be positive")
	}
	if c.Run.RolloutNumber <= 0 {
		return fmt.Errorf("run.rollout_number must be positive")
	}

	if c.ToolServer.Port <= 0 || c.ToolServer.Port > 65535 {
		return fmt.Errorf("tool_server.port must be a valid port")
	}
	if c.ToolServer.WorkersPerTool <= 0 {
		return fmt.Errorf("tool_server.workers_per_tool must be positive")
	}
	if c.ToolServer.QueueDepth <= 0 {
		return fmt.Errorf("tool_server.queue_depth must be positive")
	}
	if c.ToolServer.ToolTimeoutSec <= 0 {
		return fmt.Errorf("tool_server.tool_timeout_seconds must be positive")
	}
	if c.ToolServer.OutputCap <= 0 {
		return fmt.Errorf("tool_server.output_cap must be positive")
	}

	return nil
}
