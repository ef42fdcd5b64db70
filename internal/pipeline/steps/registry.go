// Package steps provides step definitions and dependency validation for the catalog pipeline.
package steps

import (
	"fmt"
	"path/filepath"
)

// Step names
const (
	Ingest      = "ingest"
	Resolve     = "resolve"
	Consolidate = "consolidate"
	Normalize   = "normalize"
	LinkImages  = "link-images"
	Enrich      = "enrich"
	Validate    = "validate"
	Index       = "index"
)

// WorkDir holds the work snapshots under the catalog root.
const WorkDir = "work"

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Number       int
	Title        string
	Dependencies []string
	// Optional dependencies are used as input when their snapshot is newer than the
	// required one.
	Optional []string
	// Snapshot is true when the step writes work/<name>.json.
	Snapshot bool
}

// Total is the number of pipeline steps.
const Total = 8

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	Ingest: {
		Name:   Ingest,
		Number: 1,
		Title:  "Reading distributor sources",
	},
	Resolve: {
		Name:         Resolve,
		Number:       2,
		Title:        "Resolving categories and identities",
		Dependencies: []string{Ingest},
	},
	Consolidate: {
		Name:         Consolidate,
		Number:       3,
		Title:        "Consolidating products",
		Dependencies: []string{Resolve},
		Snapshot:     true,
	},
	Normalize: {
		Name:         Normalize,
		Number:       4,
		Title:        "Normalizing technical specs",
		Dependencies: []string{Consolidate},
		Snapshot:     true,
	},
	LinkImages: {
		Name:         LinkImages,
		Number:       5,
		Title:        "Linking images",
		Dependencies: []string{Normalize},
		Snapshot:     true,
	},
	Enrich: {
		Name:         Enrich,
		Number:       6,
		Title:        "Enriching from product photos",
		Dependencies: []string{LinkImages},
		Snapshot:     true,
	},
	Validate: {
		Name:         Validate,
		Number:       7,
		Title:        "Validating against category schemas",
		Dependencies: []string{LinkImages},
		Optional:     []string{Enrich},
		Snapshot:     true,
	},
	Index: {
		Name:         Index,
		Number:       8,
		Title:        "Publishing unified catalog",
		Dependencies: []string{Validate},
	},
}

// Ordered returns the step definitions in execution order.
func Ordered() []StepDefinition {
	out := make([]StepDefinition, Total)
	for _, def := range StepRegistry {
		out[def.Number-1] = def
	}
	return out
}

// Get returns the definition of a step.
func Get(name string) (StepDefinition, error) {
	def, ok := StepRegistry[name]
	if !ok {
		return StepDefinition{}, fmt.Errorf("unknown step: %s", name)
	}
	return def, nil
}

// SnapshotPath returns work/<step>.json under root.
func SnapshotPath(root, step string) string {
	return filepath.Join(root, WorkDir, step+".json")
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v (run them first or use run-all)", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks that every required dependency of a step has produced its
// snapshot. Steps without a snapshot are satisfied by their own dependencies.
func ValidateDependencies(stepName string, completed func(step string) bool) error {
	def, err := Get(stepName)
	if err != nil {
		return err
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !satisfied(dep, completed) {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}

func satisfied(step string, completed func(string) bool) bool {
	def, ok := StepRegistry[step]
	if !ok {
		return false
	}
	if def.Snapshot {
		return completed(step)
	}
	for _, dep := range def.Dependencies {
		if !satisfied(dep, completed) {
			return false
		}
	}
	return true
}

// GetAvailableSteps returns steps whose dependencies are met, in execution order.
func GetAvailableSteps(completed func(step string) bool) []string {
	var available []string
	for _, def := range Ordered() {
		if ValidateDependencies(def.Name, completed) == nil {
			available = append(available, def.Name)
		}
	}
	return available
}

// GetBlockedSteps returns steps whose dependencies are not met, in execution order.
func GetBlockedSteps(completed func(step string) bool) []string {
	var blocked []string
	for _, def := range Ordered() {
		if ValidateDependencies(def.Name, completed) != nil {
			blocked = append(blocked, def.Name)
		}
	}
	return blocked
}
