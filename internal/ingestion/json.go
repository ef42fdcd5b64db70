package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Container keys that hold the product list of a JSON document.
var listKeys = []string{"products", "kits", "items", "produtos"}

// Component lists whose images carry a component role.
var componentRoles = map[string]string{
	"panels":     types.RoleComponentPanel,
	"paineis":    types.RoleComponentPanel,
	"modules":    types.RoleComponentPanel,
	"inverters":  types.RoleComponentInverter,
	"inversores": types.RoleComponentInverter,
}

// JSONAdapter reads a JSON document holding a list of products, an object with a product list,
// or a single product object.
type JSONAdapter struct {
	source config.Source
}

func (a *JSONAdapter) Name() string { return config.AdapterJSON }

func (a *JSONAdapter) Read(ctx context.Context, path string, emit func(types.RawProduct), reject func(*InputFormatError)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	data, err = DecodeText(data)
	if err != nil {
		return &InputFormatError{Message: "cannot decode text", Cause: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &InputFormatError{Message: "invalid JSON", Cause: err}
	}

	for i, item := range productList(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := i + 1
		obj, ok := item.(map[string]any)
		if !ok {
			reject(&InputFormatError{Row: row, Message: fmt.Sprintf("expected an object, got %T", item)})
			continue
		}
		fields := plainNumbers(obj).(map[string]any)
		emit(types.RawProduct{
			SourceID:  sourceID(fields, ""),
			Row:       row,
			RawFields: fields,
			ImageRefs: jsonImageRefs(fields, a.source.ImageRoles),
			FreeText:  freeText(fields),
		})
	}
	return nil
}

// productList finds the records of a decoded document.
func productList(doc any) []any {
	switch t := doc.(type) {
	case []any:
		return t
	case map[string]any:
		folded := normalize.FoldKeys(t)
		for _, k := range listKeys {
			if list, ok := folded[k].([]any); ok {
				return list
			}
		}
		return []any{t}
	default:
		return []any{doc}
	}
}

// jsonImageRefs adds component images (panels[].image, inverters[].image) to the record's own.
func jsonImageRefs(fields map[string]any, roles map[string]string) []types.ImageRef {
	refs := imageRefs(fields, roles)
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[r.Ref] = true
	}

	folded := normalize.FoldKeys(fields)
	for _, key := range sortedKeys(componentRoles) {
		list, ok := folded[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, r := range imageRefs(obj, nil) {
				if seen[r.Ref] {
					continue
				}
				seen[r.Ref] = true
				if r.Role == "" {
					r.Role = componentRoles[key]
				}
				refs = append(refs, r)
			}
		}
	}
	return refs
}

// plainNumbers replaces json.Number with int64 when the literal is integral and float64
// otherwise. Literals that fit neither stay strings.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainNumbers(val)
		}
		return out
	default:
		return v
	}
}
