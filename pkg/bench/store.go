package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrResultExists is returned when a result for the same (task, rollout)
// pair was already persisted.
var ErrResultExists = errors.New("result already exists")

// Store persists one JSON result file per (task_id, rollout_index) under a
// single output directory. Files are written atomically and never
// overwritten, which makes repeated runs over the same directory idempotent.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the output directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Result store initialized")

	return &Store{dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) resultPath(taskID string, rolloutIndex int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_r%d.json", taskID, rolloutIndex))
}

// Exists reports whether a terminal result was already written for the pair.
func (s *Store) Exists(taskID string, rolloutIndex int) bool {
	_, err := os.Stat(s.resultPath(taskID, rolloutIndex))
	return err == nil
}

// Write persists a result. The write goes through a temp file in the same
// directory followed by a rename, so a crash never leaves a partial file
// behind, and an existing result is never replaced.
func (s *Store) Write(result Result) error {
	if err := result.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.resultPath(result.TaskID, result.RolloutIndex)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrResultExists, result.Key())
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result %s: %w", result.Key(), err)
	}

	tmp, err := os.CreateTemp(s.dir, ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp result file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write result %s: %w", result.Key(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync result %s: %w", result.Key(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close result %s: %w", result.Key(), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize result %s: %w", result.Key(), err)
	}

	log.Debug().
		Str("task_id", result.TaskID).
		Int("rollout_index", result.RolloutIndex).
		Str("status", string(result.Status)).
		Msg("Result persisted")

	return nil
}

// Load reads a persisted result back.
func (s *Store) Load(taskID string, rolloutIndex int) (Result, error) {
	data, err := os.ReadFile(s.resultPath(taskID, rolloutIndex))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read result %s#%d: %w", taskID, rolloutIndex, err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("failed to decode result %s#%d: %w", taskID, rolloutIndex, err)
	}
	return result, nil
}

// List returns the keys of all persisted results, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}
