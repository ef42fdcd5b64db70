// Package prompts holds the prompt and text templates sent to model providers. Templates live in
// embedded JSON files whose keys are "<name>-<version>", so a cached answer can name the exact
// template that produced it.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var templateFiles embed.FS

var (
	mu     sync.RWMutex
	parsed = make(map[string]map[string]string)
)

// placeholder matches {{.Key}}.
var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)

// Get returns the template stored under key in file (e.g. "vision.json").
func Get(file, key string) (string, error) {
	templates, err := load(file)
	if err != nil {
		return "", err
	}
	t, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, file)
	}
	return t, nil
}

// Versioned returns the template name-version from file. An unknown version is reported
// together with the versions file does carry.
func Versioned(file, name, version string) (string, error) {
	if version == "" {
		return "", fmt.Errorf("prompt %s: empty version", name)
	}
	t, err := Get(file, name+"-"+version)
	if err == nil {
		return t, nil
	}
	keys, lerr := List(file)
	if lerr != nil {
		return "", err
	}
	var versions []string
	for _, k := range keys {
		if v, ok := strings.CutPrefix(k, name+"-"); ok {
			versions = append(versions, v)
		}
	}
	return "", fmt.Errorf("prompt %s has no version %q in %s (available: %s)",
		name, version, file, strings.Join(versions, ", "))
}

// Format substitutes {{.Key}} placeholders from data. Placeholders without a value are left
// in place so a missing field shows up in the rendered text.
func Format(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct placeholder names of template in sorted order.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// List returns the keys of file in sorted order.
func List(file string) ([]string, error) {
	templates, err := load(file)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func load(file string) (map[string]string, error) {
	mu.RLock()
	templates, ok := parsed[file]
	mu.RUnlock()
	if ok {
		return templates, nil
	}

	data, err := templateFiles.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", file, err)
	}

	mu.Lock()
	parsed[file] = templates
	mu.Unlock()
	return templates, nil
}
