package types

// Issue kinds recorded in the integrity report
const (
	KindInputFormat   = "InputFormatError"
	KindResolution    = "ResolutionError"
	KindNormalization = "NormalizationWarning"
	KindImageMiss     = "ImageMissError"
	KindEnrichment    = "EnrichmentError"
	KindValidation    = "ValidationError"
	KindCoercion      = "CoercionNotice"
	KindBudget        = "BudgetWarning"
)

// Issue is a recoverable problem found during a run, with enough provenance to fix it upstream.
type Issue struct {
	Kind       string `json:"kind"`
	Stage      string `json:"stage"`
	SourceFile string `json:"source_file,omitempty"`
	Row        int    `json:"row,omitempty"`
	Field      string `json:"field,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	Message    string `json:"message"`
}

// Snapshot is the on-disk work artifact handed from one stage to the next.
type Snapshot struct {
	Stage    string                `json:"stage"`
	RunID    string                `json:"run_id"`
	Sources  []string              `json:"sources"`
	Products []ConsolidatedProduct `json:"products"`
	Issues   []Issue               `json:"issues"`
}

// MasterIndex is unified/master_index.json.
type MasterIndex struct {
	Version      string              `json:"version"`
	GeneratedAt  string              `json:"generated_at"`
	SchemaHashes map[string]string   `json:"schema_hashes"`
	Categories   map[string]int      `json:"categories"`
	Sources      []string            `json:"sources"`
	Files        []string            `json:"files"`
	Quarantined  map[string][]string `json:"quarantined"`
}

// IntegrityReport is unified/integrity_report.json.
type IntegrityReport struct {
	GeneratedAt    string                       `json:"generated_at"`
	Total          int                          `json:"total"`
	Valid          int                          `json:"valid"`
	Quarantined    int                          `json:"quarantined"`
	Rejected       int                          `json:"rejected"`
	PerCategory    map[string]CategoryIntegrity `json:"per_category"`
	Images         ImageCoverage                `json:"images"`
	SourceCounts   map[string]int               `json:"provenance_source_counts"`
	CountsByKind   map[string]int               `json:"counts_by_kind"`
	TopSourceFiles []SourceFileCount            `json:"top_offending_source_files"`
	Issues         []Issue                      `json:"issues"`
}

// CategoryIntegrity aggregates one category.
type CategoryIntegrity struct {
	Total       int                `json:"total"`
	Valid       int                `json:"valid"`
	Quarantined int                `json:"quarantined"`
	Rejected    int                `json:"rejected"`
	Coverage    map[string]float64 `json:"field_coverage"`
}

// ImageCoverage counts image linking results.
type ImageCoverage struct {
	WithImages    int     `json:"products_with_images"`
	WithoutImages int     `json:"products_without_images"`
	Misses        int     `json:"misses"`
	Coverage      float64 `json:"coverage"`
}

// SourceFileCount pairs a source file with the number of issues it produced.
type SourceFileCount struct {
	SourceFile string `json:"source_file"`
	Count      int    `json:"count"`
}
