// Package report accumulates recoverable issues raised by the pipeline stages.
package report

import (
	"sort"
	"sync"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Collector is safe for concurrent use by stage workers.
type Collector struct {
	mu     sync.Mutex
	issues []types.Issue
}

// NewCollector returns a collector seeded with issues carried over from earlier stages.
func NewCollector(seed ...types.Issue) *Collector {
	c := &Collector{}
	c.issues = append(c.issues, seed...)
	return c
}

// Add records an issue.
func (c *Collector) Add(issue types.Issue) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.issues = append(c.issues, issue)
	c.mu.Unlock()
}

// Addf is a shorthand for the common case.
func (c *Collector) Addf(kind, stage, sourceFile string, row int, field, productID, message string) {
	c.Add(types.Issue{
		Kind:       kind,
		Stage:      stage,
		SourceFile: sourceFile,
		Row:        row,
		Field:      field,
		ProductID:  productID,
		Message:    message,
	})
}

// Issues returns a sorted copy of all issues. Sorting makes reports independent of worker
// scheduling.
func (c *Collector) Issues() []types.Issue {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	out := make([]types.Issue, len(c.issues))
	copy(out, c.issues)
	c.mu.Unlock()

	Sort(out)
	return out
}

// Count returns the number of issues of the given kind.
func (c *Collector) Count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, i := range c.issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of recorded issues.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issues)
}

// Sort orders issues by stage, kind, source file, row, product, field and message.
func Sort(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Message < b.Message
	})
}

// CountsByKind tallies issues per kind.
func CountsByKind(issues []types.Issue) map[string]int {
	counts := make(map[string]int)
	for _, i := range issues {
		counts[i.Kind]++
	}
	return counts
}

// TopSourceFiles returns the n source files with the most issues, most first.
func TopSourceFiles(issues []types.Issue, n int) []types.SourceFileCount {
	counts := make(map[string]int)
	for _, i := range issues {
		if i.SourceFile == "" {
			continue
		}
		counts[i.SourceFile]++
	}

	out := make([]types.SourceFileCount, 0, len(counts))
	for file, count := range counts {
		out = append(out, types.SourceFileCount{SourceFile: file, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SourceFile < out[j].SourceFile
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
