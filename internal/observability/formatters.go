// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for stage banners and summaries
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintStage prints the banner of one pipeline stage.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintStage(number, total int, title string) {
	fmt.Fprintf(p.out, "Step %d/%d: %s...\n", number, total, title)
}

// Printf prints a plain progress line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// PrintCounts prints a box of name/count pairs sorted by name.
func (p *Printer) PrintCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	p.printBox(title, formatCounts(counts))
}

// PrintIntegritySummary outputs totals, counts by issue kind and the most offending files.
func (p *Printer) PrintIntegritySummary(report *types.IntegrityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Products:     %d\n", report.Total))
	sb.WriteString(fmt.Sprintf("Valid:        %d\n", report.Valid))
	sb.WriteString(fmt.Sprintf("Quarantined:  %d\n", report.Quarantined))
	if report.Rejected > 0 {
		sb.WriteString(fmt.Sprintf("Rejected:     %d\n", report.Rejected))
	}
	sb.WriteString(fmt.Sprintf("Images:       %d linked, %d misses (%.0f%% coverage)\n",
		report.Images.WithImages, report.Images.Misses, report.Images.Coverage*100))

	if len(report.CountsByKind) > 0 {
		sb.WriteString("\nIssues by kind:\n")
		sb.WriteString(indent(formatCounts(report.CountsByKind)))
		sb.WriteString("\n")
	}

	if len(report.TopSourceFiles) > 0 {
		sb.WriteString("\nTop offending files:\n")
		count := min(len(report.TopSourceFiles), maxItemsToShow)
		for i := 0; i < count; i++ {
			f := report.TopSourceFiles[i]
			sb.WriteString(fmt.Sprintf("  • %s (%d)\n", f.SourceFile, f.Count))
		}
		if len(report.TopSourceFiles) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.TopSourceFiles)-maxItemsToShow))
		}
	}

	p.printBox("INTEGRITY REPORT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMasterIndex outputs the published categories and quarantine counts.
func (p *Printer) PrintMasterIndex(idx *types.MasterIndex) {
	if idx == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Version:  %s\n", idx.Version))
	sb.WriteString(fmt.Sprintf("Sources:  %s\n", strings.Join(idx.Sources, ", ")))
	sb.WriteString("\n")

	if len(idx.Categories) > 0 {
		sb.WriteString("Categories:\n")
		sb.WriteString(indent(formatCounts(idx.Categories)))
		sb.WriteString("\n")
	}

	quarantined := make(map[string]int, len(idx.Quarantined))
	for cat, ids := range idx.Quarantined {
		quarantined[cat] = len(ids)
	}
	if len(quarantined) > 0 {
		sb.WriteString("\nQuarantined:\n")
		sb.WriteString(indent(formatCounts(quarantined)))
	}

	p.printBox("MASTER INDEX", strings.TrimSuffix(sb.String(), "\n"))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	width := 0
	for k := range counts {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-*s  %d", width, k, counts[k]))
	}
	return strings.Join(lines, "\n")
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
