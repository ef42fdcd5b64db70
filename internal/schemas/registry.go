package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yshsolar/catalog-pipeline/internal/types"
	defaults "github.com/yshsolar/catalog-pipeline/schemas"
)

// CommonKey is the schema_hashes key of the shared definitions file.
const CommonKey = "common"

// Registry holds one compiled schema per category.
type Registry struct {
	schemas map[types.Category]*gojsonschema.Schema
	hashes  map[string]string
	source  string
}

// LoadRegistry compiles the schemas in dir. When dir does not exist the embedded defaults are
// used; a directory that exists but lacks a category file is an error.
func LoadRegistry(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewRegistry(defaults.FS(), "embedded")
	case err != nil:
		return nil, &SchemaLoadError{Path: dir, Message: "cannot stat schema directory", Cause: err}
	case !info.IsDir():
		return nil, &SchemaLoadError{Path: dir, Message: "not a directory"}
	}
	return NewRegistry(os.DirFS(dir), dir)
}

// NewRegistry compiles <category>.schema.json for every category from fsys, each with
// common.schema.json available under its reference URL.
func NewRegistry(fsys fs.FS, source string) (*Registry, error) {
	common, err := fs.ReadFile(fsys, defaults.CommonFile)
	if err != nil {
		return nil, &SchemaLoadError{Path: defaults.CommonFile, Message: "cannot read shared definitions", Cause: err}
	}

	r := &Registry{
		schemas: make(map[types.Category]*gojsonschema.Schema),
		hashes:  map[string]string{CommonKey: hashBytes(common)},
		source:  source,
	}
	for _, category := range types.AllCategories() {
		name := defaults.FileName(string(category))
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, &SchemaLoadError{Path: name, Message: "cannot read category schema", Cause: err}
		}

		loader := gojsonschema.NewSchemaLoader()
		loader.Draft = gojsonschema.Draft7
		loader.AutoDetect = false
		if err := loader.AddSchema(defaults.CommonURL, gojsonschema.NewBytesLoader(common)); err != nil {
			return nil, &SchemaLoadError{Path: defaults.CommonFile, Message: "invalid shared definitions", Cause: err}
		}
		schema, err := loader.Compile(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, &SchemaLoadError{Path: name, Message: "invalid category schema", Cause: err}
		}
		r.schemas[category] = schema
		r.hashes[string(category)] = hashBytes(data)
	}
	return r, nil
}

// Source names where the schemas were loaded from.
func (r *Registry) Source() string {
	return r.source
}

// Hashes returns the sha256 of every schema file keyed by category, plus CommonKey.
func (r *Registry) Hashes() map[string]string {
	out := make(map[string]string, len(r.hashes))
	for k, v := range r.hashes {
		out[k] = v
	}
	return out
}

// ValidateDocument validates a JSON document against the schema of category. Violations are
// returned as a *ValidationError; any other error means the document could not be checked.
func (r *Registry) ValidateDocument(category types.Category, doc []byte) error {
	schema, ok := r.schemas[category]
	if !ok {
		return fmt.Errorf("no schema for category %q", category)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate %s document: %w", category, err)
	}
	if errs := fieldErrors(result); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateProduct marshals p and validates it against the schema of its category.
func (r *Registry) ValidateProduct(p *types.ConsolidatedProduct) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", p.ID, err)
	}
	return r.ValidateDocument(p.Category, doc)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
