package steps

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(s string) bool { return set[s] }
}

func TestOrdered(t *testing.T) {
	var names []string
	for _, def := range Ordered() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{Ingest, Resolve, Consolidate, Normalize, LinkImages, Enrich, Validate, Index}, names)
}

func TestRegistry_DependenciesAreKnownAndEarlier(t *testing.T) {
	for name, def := range StepRegistry {
		assert.Equal(t, name, def.Name)
		for _, dep := range append(append([]string{}, def.Dependencies...), def.Optional...) {
			d, ok := StepRegistry[dep]
			require.True(t, ok, "%s depends on unknown step %s", name, dep)
			assert.Less(t, d.Number, def.Number)
		}
	}
}

func TestValidateDependencies(t *testing.T) {
	tests := []struct {
		name      string
		step      string
		completed []string
		missing   []string
	}{
		{name: "consolidate needs nothing on disk", step: Consolidate},
		{name: "normalize without snapshot", step: Normalize, missing: []string{Consolidate}},
		{name: "normalize ready", step: Normalize, completed: []string{Consolidate}},
		{name: "validate skips enrich", step: Validate, completed: []string{LinkImages}},
		{name: "index needs validate", step: Index, completed: []string{LinkImages}, missing: []string{Validate}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDependencies(tt.step, completedSet(tt.completed...))
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			var depErr *DependencyError
			require.ErrorAs(t, err, &depErr)
			assert.Equal(t, tt.missing, depErr.MissingDependencies)
			assert.Contains(t, err.Error(), tt.step)
		})
	}
}

func TestValidateDependencies_UnknownStep(t *testing.T) {
	err := ValidateDependencies("publish-site", completedSet())
	assert.Error(t, err)
}

func TestAvailableAndBlocked(t *testing.T) {
	done := completedSet(Consolidate, Normalize)
	assert.Equal(t, []string{Ingest, Resolve, Consolidate, Normalize, LinkImages}, GetAvailableSteps(done))
	assert.Equal(t, []string{Enrich, Validate, Index}, GetBlockedSteps(done))
}

func TestSnapshotPath(t *testing.T) {
	assert.Equal(t, filepath.Join("root", "work", "normalize.json"), SnapshotPath("root", Normalize))
}
