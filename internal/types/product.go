package types

// Precedence orders value sources during merges. Lower values win.
type Precedence int

// Precedence levels
const (
	PrecedenceStructured Precedence = 1
	PrecedenceFreeText   Precedence = 2
	PrecedenceExtracted  Precedence = 3
)

// Validation status values
const (
	StatusPending     = ""
	StatusValid       = "valid"
	StatusQuarantined = "quarantined"
	StatusRejected    = "rejected"
)

// Product flags
const (
	FlagNeedsReview    = "needs_review"
	FlagNeedsRecapture = "needs_recapture"
)

// Image roles
const (
	RolePrimary           = "primary"
	RoleGallery           = "gallery"
	RoleComponentPanel    = "component_panel"
	RoleComponentInverter = "component_inverter"
)

// Variant names
const (
	VariantThumb    = "thumb"
	VariantMedium   = "medium"
	VariantLarge    = "large"
	VariantOriginal = "original"
)

// ConsolidatedProduct is one deduplicated catalog entry. It is created by the consolidator,
// refined by normalization, image linking, enrichment and validation, and frozen by the indexer.
type ConsolidatedProduct struct {
	ID               string             `json:"id"`
	Fingerprint      string             `json:"fingerprint"`
	Category         Category           `json:"category"`
	Manufacturer     *string            `json:"manufacturer"`
	Model            *string            `json:"model"`
	Family           *string            `json:"family"`
	Title            *string            `json:"title"`
	DescriptionShort *string            `json:"description_short"`
	DescriptionLong  *string            `json:"description_long"`
	TechnicalSpecs   TechnicalSpecs     `json:"technical_specs"`
	Pricing          []PriceObservation `json:"pricing"`
	Images           []ImageAsset       `json:"images"`
	ImageRefs        []ImageRef         `json:"image_refs,omitempty"`
	Certifications   []string           `json:"certifications,omitempty"`
	Provenance       []ProvenanceEntry  `json:"provenance"`
	// FieldSources maps each non-null top-level field to the source that supplied it.
	FieldSources map[string]string `json:"field_sources"`
	// FieldPrecedence keeps the precedence level of each winning value so later stages
	// (enrichment) merge under the same rules.
	FieldPrecedence map[string]Precedence `json:"field_precedence,omitempty"`
	Attributes      map[string]any        `json:"attributes,omitempty"`
	FreeText        []string              `json:"free_text,omitempty"`
	Enrichment      *Enrichment           `json:"enrichment,omitempty"`
	Flags           []string              `json:"flags,omitempty"`
	Validation      Validation            `json:"validation"`
}

// TechnicalSpecs holds the category-typed technical fields. Unset fields are omitted.
type TechnicalSpecs struct {
	PowerW          *float64 `json:"power_w,omitempty"`
	PowerKW         *float64 `json:"power_kw,omitempty"`
	PowerKWp        *float64 `json:"power_kwp,omitempty"`
	CapacityAh      *float64 `json:"capacity_ah,omitempty"`
	CapacityKWh     *float64 `json:"capacity_kwh,omitempty"`
	Voltage         *string  `json:"voltage,omitempty"`
	Phases          *string  `json:"phases,omitempty"`
	Efficiency      *float64 `json:"efficiency,omitempty"`
	InverterType    *string  `json:"inverter_type,omitempty"`
	Technology      *string  `json:"technology,omitempty"`
	Cells           *int     `json:"cells,omitempty"`
	MPPTs           *int     `json:"mppts,omitempty"`
	CurrentA        *float64 `json:"current_a,omitempty"`
	ControllerType  *string  `json:"controller_type,omitempty"`
	CrossSectionMM2 *float64 `json:"cross_section_mm2,omitempty"`
	PanelCount      *int     `json:"panel_count,omitempty"`
	PanelPowerW     *float64 `json:"panel_power_w,omitempty"`
	Connector       *string  `json:"connector,omitempty"`
}

// PriceObservation is one price seen in one source. Observations are never merged.
type PriceObservation struct {
	Source           string `json:"source"`
	Currency         string `json:"currency,omitempty"`
	AmountMinorUnits *int64 `json:"amount_minor_units"`
	Raw              string `json:"raw,omitempty"`
	ObservedAt       string `json:"observed_at"`
}

// ProvenanceEntry explains what one contributing record supplied.
type ProvenanceEntry struct {
	SourceName        string   `json:"source_name"`
	SourceFile        string   `json:"source_file"`
	SourceID          string   `json:"source_id,omitempty"`
	FieldsContributed []string `json:"fields_contributed"`
	FieldsShadowed    []string `json:"fields_shadowed,omitempty"`
	ObservedAt        string   `json:"observed_at"`
}

// ImageAsset is a content-addressed image attached to a product.
type ImageAsset struct {
	Role        string            `json:"role"`
	Original    string            `json:"original_url_or_path"`
	ContentHash string            `json:"content_hash"`
	Variants    map[string]string `json:"variants"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Format      string            `json:"format"`
	Bytes       int64             `json:"bytes"`
}

// Enrichment records what the vision stage extracted for a product.
type Enrichment struct {
	AgentID           string   `json:"agent_id"`
	PromptVersion     string   `json:"prompt_version"`
	Manufacturer      string   `json:"manufacturer,omitempty"`
	Model             string   `json:"model,omitempty"`
	VisibleText       string   `json:"visible_text,omitempty"`
	Certifications    []string `json:"certifications,omitempty"`
	ImageQualityScore float64  `json:"image_quality_score"`
	Confidence        float64  `json:"confidence"`
	Escalated         bool     `json:"escalated,omitempty"`
	QualityIssues     []string `json:"quality_issues,omitempty"`
	ContentHash       string   `json:"content_hash"`
	FromCache         bool     `json:"-"`
}

// Validation is the outcome of schema validation.
type Validation struct {
	Status string            `json:"status"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one schema violation located by JSON pointer.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// HasFlag reports whether the product carries flag.
func (p *ConsolidatedProduct) HasFlag(flag string) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag adds flag once.
func (p *ConsolidatedProduct) AddFlag(flag string) {
	if !p.HasFlag(flag) {
		p.Flags = append(p.Flags, flag)
	}
}

// PrimaryImage returns the primary image asset, or the first asset when none is marked primary.
func (p *ConsolidatedProduct) PrimaryImage() *ImageAsset {
	for i := range p.Images {
		if p.Images[i].Role == RolePrimary {
			return &p.Images[i]
		}
	}
	if len(p.Images) > 0 {
		return &p.Images[0]
	}
	return nil
}

// Str returns the dereferenced string or "".
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
