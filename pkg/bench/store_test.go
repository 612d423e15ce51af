package bench

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(taskID string, idx int) Result {
	return Result{
		TaskID:       taskID,
		RolloutIndex: idx,
		Status:       StatusSuccess,
		FinalAnswer:  "42",
		Rounds:       3,
	}
}

func TestStoreWriteAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	result := testResult("sf001", 0)
	require.NoError(t, store.Write(result))

	loaded, err := store.Load("sf001", 0)
	require.NoError(t, err)
	assert.Equal(t, result.TaskID, loaded.TaskID)
	assert.Equal(t, result.Status, loaded.Status)
	assert.Equal(t, result.FinalAnswer, loaded.FinalAnswer)
	assert.Equal(t, result.Rounds, loaded.Rounds)
}

func TestStoreExists(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("sf001", 0))
	require.NoError(t, store.Write(testResult("sf001", 0)))
	assert.True(t, store.Exists("sf001", 0))
	assert.False(t, store.Exists("sf001", 1))
	assert.False(t, store.Exists("sf002", 0))
}

func TestStoreNeverOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := testResult("sf001", 0)
	require.NoError(t, store.Write(first))

	second := testResult("sf001", 0)
	second.FinalAnswer = "changed"
	err = store.Write(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultExists)

	loaded, err := store.Load("sf001", 0)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.FinalAnswer)
}

func TestStoreWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write(testResult("sf001", 0)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "temp file left behind: %s", entry.Name())
	}
}

func TestStoreWriteRejectsInvalidResult(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Write(Result{RolloutIndex: 0, Status: StatusSuccess}))
	assert.Error(t, store.Write(Result{TaskID: "sf001", Status: "weird"}))
	assert.Error(t, store.Write(Result{TaskID: "sf001", Status: StatusError}))
}

func TestStoreConcurrentWritesOneWinner(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wins, losses int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Write(testResult("sf001", 0))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				losses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, losses)
}

func TestStoreList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(testResult("sf002", 0)))
	require.NoError(t, store.Write(testResult("sf001", 1)))
	require.NoError(t, store.Write(testResult("sf001", 0)))

	keys, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"sf001_r0", "sf001_r1", "sf002_r0"}, keys)
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/out"
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
