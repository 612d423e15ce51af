package config

// Config is the top-level harness configuration.
type Config struct {
	Model      ModelConfig      `json:"model" mapstructure:"model"`
	Run        RunConfig        `json:"run" mapstructure:"run"`
	Paths      PathsConfig      `json:"paths" mapstructure:"paths"`
	ToolServer ToolServerConfig `json:"tool_server" mapstructure:"tool_server"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// ModelConfig selects the provider and sampling parameters.
type ModelConfig struct {
	Provider        string  `json:"provider" mapstructure:"provider"` // "openai" or "anthropic"
	APIKey          string  `json:"api_key" mapstructure:"api_key"`
	Name            string  `json:"name" mapstructure:"name"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	TopP            float64 `json:"top_p" mapstructure:"top_p"`
	MaxOutputTokens int     `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxRetries      int     `json:"max_retries" mapstructure:"max_retries"`
}

// RunConfig bounds the benchmark run.
type RunConfig struct {
	MaxRounds     int `json:"max_rounds" mapstructure:"max_rounds"`
	NumThreads    int `json:"num_threads" mapstructure:"num_threads"`
	RolloutNumber int `json:"rollout_number" mapstructure:"rollout_number"`
}

// PathsConfig locates the run's inputs and outputs.
type PathsConfig struct {
	Tasks            string `json:"tasks" mapstructure:"tasks"`
	ResourceRoot     string `json:"resource_root" mapstructure:"resource_root"`
	OutputDir        string `json:"output_dir" mapstructure:"output_dir"`
	SystemPromptFile string `json:"system_prompt_file" mapstructure:"system_prompt_file"`
	SystemPrompt     string `json:"system_prompt" mapstructure:"system_prompt"`
}

// ToolServerConfig configures the tool execution service.
type ToolServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	WorkersPerTool int    `json:"workers_per_tool" mapstructure:"workers_per_tool"`
	QueueDepth     int    `json:"queue_depth" mapstructure:"queue_depth"`
	ToolTimeoutSec int    `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
	OutputCap      int    `json:"output_cap" mapstructure:"output_cap"`
	// RemoteURL, when set, dispatches tool calls to an already-running
	// server instead of starting one in process.
	RemoteURL string `json:"remote_url" mapstructure:"remote_url"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the defaults used when a field is unset.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:        "openai",
			Name:            "gpt-4o",
			Temperature:     0.7,
			TopP:            1.0,
			MaxOutputTokens: 4096,
			MaxRetries:      3,
		},
		Run: RunConfig{
			MaxRounds:     15,
			NumThreads:    8,
			RolloutNumber: 1,
		},
		ToolServer: ToolServerConfig{
			Host:           "127.0.0.1",
			Port:           8321,
			WorkersPerTool: 4,
			QueueDepth:     64,
			ToolTimeoutSec: 300,
			OutputCap:      2000,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
