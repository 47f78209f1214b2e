package journal

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, max int) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "journal.db")
	j, err := Open(path, max)
	require.NoError(t, err)
	return j, path
}

func TestRecordAndRecent(t *testing.T) {
	j, _ := openTemp(t, 0)
	defer j.Close()

	for _, typ := range []string{"get_scene_info", "create_object", "delete_object"} {
		_, err := j.Record(Entry{Type: typ, Status: "success", ConnID: "c1"})
		require.NoError(t, err)
	}

	entries, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "delete_object", entries[0].Type)
	assert.Equal(t, uint64(3), entries[0].ID)
	assert.Equal(t, "create_object", entries[1].Type)
	assert.False(t, entries[0].Time.IsZero())

	all, err := j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordKeepsParams(t *testing.T) {
	j, _ := openTemp(t, 0)
	defer j.Close()

	_, err := j.Record(Entry{
		Type:    "delete_object",
		Params:  map[string]any{"name": "Cube"},
		Status:  "error",
		Message: "Object 'Cube' not found",
	})
	require.NoError(t, err)

	entries, err := j.Recent(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Cube"}, entries[0].Params)
	assert.Equal(t, "Object 'Cube' not found", entries[0].Message)
}

func TestMaxEntriesDropsOldest(t *testing.T) {
	j, _ := openTemp(t, 3)
	defer j.Close()

	for i := 0; i < 5; i++ {
		_, err := j.Record(Entry{Type: "get_scene_info"})
		require.NoError(t, err)
	}

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(5), entries[0].ID)
	assert.Equal(t, uint64(3), entries[2].ID)
}

func TestConcurrentRecord(t *testing.T) {
	j, _ := openTemp(t, 0)
	defer j.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 10; k++ {
				_, err := j.Record(Entry{Type: "get_scene_info"})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 80, n)
}

func TestOpenReadOnly(t *testing.T) {
	j, path := openTemp(t, 0)
	_, err := j.Record(Entry{Type: "create_object"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	entries, err := ro.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = OpenReadOnly(filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}
