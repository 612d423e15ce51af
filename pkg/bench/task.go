package bench

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Task is one benchmark instance: a natural-language goal to be answered
// against a database and an optional set of reference documents.
type Task struct {
	ID        string   `json:"instance_id"`
	Database  string   `json:"db_id"`
	Goal      string   `json:"instruction"`
	Documents []string `json:"external_knowledge,omitempty"`
}

// Validate checks the fields a session cannot run without.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has empty instance_id")
	}
	if strings.ContainsAny(t.ID, "/\\") || strings.Contains(t.ID, "..") {
		return fmt.Errorf("task %s: instance_id must be path-safe", t.ID)
	}
	if t.Goal == "" {
		return fmt.Errorf("task %s: instruction cannot be empty", t.ID)
	}
	return nil
}

// taskLine tolerates the singular external_knowledge field used by some
// task files alongside the list form.
type taskLine struct {
	ID           string          `json:"instance_id"`
	Database     string          `json:"db_id"`
	Goal         string          `json:"instruction"`
	ExternalDocs json.RawMessage `json:"external_knowledge,omitempty"`
}

// LoadTasks reads an ordered task list from a JSONL file, one task per line.
// Blank lines are skipped; order is preserved; duplicate IDs are rejected.
func LoadTasks(path string) ([]Task, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task file: %w", err)
	}
	defer file.Close()

	var tasks []Task
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw taskLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("task file line %d: %w", lineNo, err)
		}

		task := Task{
			ID:       raw.ID,
			Database: raw.Database,
			Goal:     raw.Goal,
		}
		if docs, err := decodeDocuments(raw.ExternalDocs); err != nil {
			return nil, fmt.Errorf("task file line %d: %w", lineNo, err)
		} else {
			task.Documents = docs
		}

		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("task file line %d: %w", lineNo, err)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("task file line %d: duplicate instance_id %s", lineNo, task.ID)
		}
		seen[task.ID] = true

		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	log.Info().Int("tasks", len(tasks)).Str("path", path).Msg("Task list loaded")

	return tasks, nil
}

func decodeDocuments(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("external_knowledge must be a string or list of strings")
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}
