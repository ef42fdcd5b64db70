package types

// ImageRef is a reference to a product image as reported by a source: a URL, a relative path,
// an opaque filename or a content hash. Role is set only when the distributor declares one.
type ImageRef struct {
	Ref  string `json:"ref"`
	Role string `json:"role,omitempty"`
}

// RawProduct is one record emitted by a source adapter. It lives only in memory during a run.
type RawProduct struct {
	SourceID   string         `json:"source_id"`
	SourceName string         `json:"source_name"`
	SourceFile string         `json:"source_file"`
	Row        int            `json:"row"`
	RawFields  map[string]any `json:"raw_fields"`
	ImageRefs  []ImageRef     `json:"image_refs,omitempty"`
	FreeText   string         `json:"free_text_description,omitempty"`
	// ObservedAt is the source file modification time (RFC 3339, UTC).
	ObservedAt string `json:"observed_at,omitempty"`

	// Set by the resolver
	Category     Category `json:"category,omitempty"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	PowerBucket  string   `json:"power_bucket,omitempty"`
	NeedsReview  bool     `json:"needs_review,omitempty"`
	// DerivedFields lists the resolver-populated fields that came from free text rather than
	// structured columns.
	DerivedFields []string `json:"derived_fields,omitempty"`
}

// Field returns the first non-empty raw field among keys.
func (r *RawProduct) Field(keys ...string) (any, string, bool) {
	for _, k := range keys {
		v, ok := r.RawFields[k]
		if !ok || IsNull(v) {
			continue
		}
		return v, k, true
	}
	return nil, "", false
}

// IsNull reports whether v carries no information: nil, empty/blank string, empty list or map.
func IsNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		for _, r := range t {
			if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
				return false
			}
		}
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
