package schemas

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categories = []string{
	"panel", "inverter", "battery", "kit", "stringbox", "structure",
	"cable", "ev_charger", "controller", "accessory", "post", "other",
}

func TestAllSchemaFiles_ValidJSON(t *testing.T) {
	for _, name := range append([]string{CommonFile}, categoryFiles()...) {
		t.Run(name, func(t *testing.T) {
			data, err := fs.ReadFile(FS(), name)
			require.NoError(t, err, "should be embedded")

			var v map[string]any
			require.NoError(t, json.Unmarshal(data, &v), "schema file should be valid JSON")
			assert.Equal(t, "http://json-schema.org/draft-07/schema#", v["$schema"])
		})
	}
}

func TestCategorySchemas_ReferenceCommon(t *testing.T) {
	for _, name := range categoryFiles() {
		t.Run(name, func(t *testing.T) {
			data, err := fs.ReadFile(FS(), name)
			require.NoError(t, err)
			assert.Contains(t, string(data), CommonURL+"#/definitions/product")
		})
	}
}

func TestWriteDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")

	written, err := WriteDefaults(dir, false)
	require.NoError(t, err)
	assert.Len(t, written, len(categories)+1)
	assert.FileExists(t, filepath.Join(dir, "inverter.schema.json"))

	custom := filepath.Join(dir, "panel.schema.json")
	require.NoError(t, os.WriteFile(custom, []byte(`{"custom": true}`), 0644))

	written, err = WriteDefaults(dir, false)
	require.NoError(t, err)
	assert.Empty(t, written, "existing files are kept")
	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, `{"custom": true}`, string(data))

	written, err = WriteDefaults(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"panel.schema.json"}, written, "only the customized file differs")

	info, err := os.Stat(filepath.Join(dir, "inverter.schema.json"))
	require.NoError(t, err)
	written, err = WriteDefaults(dir, true)
	require.NoError(t, err)
	assert.Empty(t, written, "identical files are not rewritten")
	again, err := os.Stat(filepath.Join(dir, "inverter.schema.json"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func categoryFiles() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = FileName(c)
	}
	return out
}
