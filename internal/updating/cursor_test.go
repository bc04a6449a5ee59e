package updating

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCursor_Absent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	cursor, err := LoadCursor(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cursor.Key)
}

func TestCursor_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	cursor, err := LoadCursor(path)
	require.NoError(t, err)
	cursor.Key = 42
	require.NoError(t, cursor.Save())

	reloaded, err := LoadCursor(path)
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.Key)
}

func TestCursor_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	cursor, err := LoadCursor(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	cursor.Key = 7
	require.NoError(t, cursor.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestLoadCursor_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadCursor(path)
	assert.Error(t, err)
}

func TestCursorPath(t *testing.T) {
	assert.Equal(t, filepath.Join("work", "state.json"), CursorPath("work"))
}
