package toolexecutor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

// ToolParameter declares one argument accepted by a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolHandler executes one invocation and returns the raw observation text.
// Handlers must honor ctx cancellation: the executor abandons them on timeout.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolDefinition binds a tool name to its handler and argument schema.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// Options configures execution behavior shared by all tools.
type Options struct {
	Timeout   time.Duration // per-invocation deadline
	OutputCap int           // max observation text length in bytes
}

// DefaultOptions mirrors the reference harness: five-minute statement
// timeout and a 2000-character result cap.
func DefaultOptions() Options {
	return Options{
		Timeout:   5 * time.Minute,
		OutputCap: 2000,
	}
}

// Executor holds the tool registry and runs single invocations.
type Executor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	opts    Options
	mu      sync.RWMutex
}

// New creates an executor. Zero option fields fall back to defaults.
func New(opts Options) *Executor {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.OutputCap <= 0 {
		opts.OutputCap = def.OutputCap
	}

	return &Executor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		opts:    opts,
	}
}

// Register adds a tool to the registry.
func (e *Executor) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Get returns a tool definition by name, or nil.
func (e *Executor) Get(name string) *ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[name]
}

// List returns all registered tool definitions.
func (e *Executor) List() []ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(e.tools))
	for _, def := range e.tools {
		defs = append(defs, *def)
	}
	return defs
}

// Execute runs one invocation and always returns an observation. Handler
// failures and argument errors yield error observations; exceeding the
// deadline yields a timeout observation and abandons the handler.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) bench.Observation {
	start := time.Now()

	e.mu.RLock()
	tool := e.tools[name]
	schema := e.schemas[name]
	e.mu.RUnlock()

	if tool == nil {
		return errorObservation(name, fmt.Sprintf("unknown tool: %s", name))
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := validateArgs(schema, args); err != nil {
		log.Debug().Str("tool", name).Err(err).Msg("Argument validation failed")
		return errorObservation(name, fmt.Sprintf("invalid arguments: %v", err))
	}

	execCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	type handlerResult struct {
		text string
		err  error
	}
	resultCh := make(chan handlerResult, 1)

	go func() {
		text, err := tool.Handler(execCtx, args)
		resultCh <- handlerResult{text: text, err: err}
	}()

	select {
	case res := <-resultCh:
		duration := time.Since(start)
		if res.err != nil {
			if execCtx.Err() == context.DeadlineExceeded {
				return e.timeoutObservation(name, duration)
			}
			log.Debug().Str("tool", name).Dur("duration", duration).Err(res.err).Msg("Tool execution failed")
			return errorObservation(name, res.err.Error())
		}

		text, truncated := e.truncate(res.text)
		log.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return bench.Observation{
			Text:      frame(name, text),
			Status:    bench.ObservationOK,
			Truncated: truncated,
		}

	case <-execCtx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not a tool timeout.
			return errorObservation(name, fmt.Sprintf("execution cancelled: %v", ctx.Err()))
		}
		return e.timeoutObservation(name, time.Since(start))
	}
}

func (e *Executor) timeoutObservation(name string, duration time.Duration) bench.Observation {
	log.Warn().Str("tool", name).Dur("duration", duration).Msg("Tool execution timeout")
	return bench.Observation{
		Text:   frame(name, fmt.Sprintf("Execution timed out after %v.", e.opts.Timeout)),
		Status: bench.ObservationTimeout,
	}
}

func errorObservation(name, msg string) bench.Observation {
	return bench.Observation{
		Text:   frame(name, msg),
		Status: bench.ObservationError,
	}
}

// frame prefixes observation text the way the benchmark prompts expect.
func frame(name, text string) string {
	return fmt.Sprintf("EXECUTION RESULT of [%s]:\n%s", name, text)
}

// truncate caps output at OutputCap bytes, cutting at the last complete line
// inside the cap and appending a note with the original size.
func (e *Executor) truncate(text string) (string, bool) {
	if len(text) <= e.opts.OutputCap {
		return text, false
	}

	cut := text[:e.opts.OutputCap]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}

	log.Debug().Int("original", len(text)).Int("cap", e.opts.OutputCap).Msg("Output truncated")

	return fmt.Sprintf(
		"%s\n\nNote: The result has been truncated to %d characters for display purposes. The complete output contains %d characters.",
		cut, e.opts.OutputCap, len(text),
	), true
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func generateSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
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

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
