package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesDirsAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("hello"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestWriteIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")

	wrote, err := WriteIfChanged(path, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = WriteIfChanged(path, []byte("v1"))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = WriteIfChanged(path, []byte("v2"))
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestMarshalJSON_NoHTMLEscape(t *testing.T) {
	data, err := MarshalJSON(map[string]string{"title": "Kit <5kWp> & more"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "Kit <5kWp> & more")
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestReadJSON_Errors(t *testing.T) {
	var v map[string]any
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))
	err = ReadJSON(path, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "nope")))
}
