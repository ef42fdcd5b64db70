// Package schemas embeds the default JSON Schemas of every product category. The catalog's own
// copies under <catalog root>/schemas take precedence once written by `catalog_agent init`.
package schemas

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
)

//go:embed *.schema.json
var files embed.FS

// CommonFile holds the definitions shared by every category schema.
const CommonFile = "common.schema.json"

// CommonURL is the URL category schemas use to reference CommonFile.
const CommonURL = "https://schemas.yshsolar.com.br/catalog/common.schema.json"

// FS returns the embedded schema files.
func FS() fs.FS {
	return files
}

// FileName returns the schema file name of a category.
func FileName(category string) string {
	return category + ".schema.json"
}

// WriteDefaults copies the embedded schemas into dir. Existing files are kept unless overwrite
// is set, and files already matching the embedded copy are not rewritten. It returns the names
// of the files written.
func WriteDefaults(dir string, overwrite bool) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded schemas: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create schema directory: %w", err)
	}

	var written []string
	for _, e := range entries {
		target := filepath.Join(dir, e.Name())
		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				continue
			}
		}
		data, err := files.ReadFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema %s: %w", e.Name(), err)
		}
		changed, err := fsutil.WriteIfChanged(target, data)
		if err != nil {
			return nil, fmt.Errorf("failed to write schema %s: %w", target, err)
		}
		if changed {
			written = append(written, e.Name())
		}
	}
	sort.Strings(written)
	return written, nil
}
