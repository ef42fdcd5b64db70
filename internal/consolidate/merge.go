package consolidate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Field names used in provenance and field_sources.
const (
	FieldManufacturer     = "manufacturer"
	FieldModel            = "model"
	FieldFamily           = "family"
	FieldTitle            = "title"
	FieldDescriptionShort = "description_short"
	FieldDescriptionLong  = "description_long"
	FieldAttributes       = "attributes"
	FieldPricing          = "pricing"
	FieldImageRefs        = "image_refs"
	FieldFreeText         = "free_text"
	FieldCertifications   = "certifications"
)

var scalarFields = map[string]func(p *types.ConsolidatedProduct) **string{
	FieldManufacturer:     func(p *types.ConsolidatedProduct) **string { return &p.Manufacturer },
	FieldModel:            func(p *types.ConsolidatedProduct) **string { return &p.Model },
	FieldFamily:           func(p *types.ConsolidatedProduct) **string { return &p.Family },
	FieldTitle:            func(p *types.ConsolidatedProduct) **string { return &p.Title },
	FieldDescriptionShort: func(p *types.ConsolidatedProduct) **string { return &p.DescriptionShort },
	FieldDescriptionLong:  func(p *types.ConsolidatedProduct) **string { return &p.DescriptionLong },
}

// Merger applies contributions to one product under the precedence rule: a non-null value is
// replaced only by a value of strictly higher precedence, so among equals the first
// contributor wins. Every losing value is recorded in fields_shadowed of its provenance entry.
type Merger struct {
	p     *types.ConsolidatedProduct
	owner map[string]int // scalar path -> provenance index of the current value
}

// NewMerger wraps p. Ownership of existing values is recovered from its provenance, so a
// product loaded from a snapshot can keep merging.
func NewMerger(p *types.ConsolidatedProduct) *Merger {
	if p.FieldSources == nil {
		p.FieldSources = make(map[string]string)
	}
	if p.FieldPrecedence == nil {
		p.FieldPrecedence = make(map[string]types.Precedence)
	}
	m := &Merger{p: p, owner: make(map[string]int)}
	for i, e := range p.Provenance {
		for _, f := range e.FieldsContributed {
			if _, ok := m.owner[f]; !ok {
				m.owner[f] = i
			}
		}
	}
	return m
}

// Product returns the product being merged into.
func (m *Merger) Product() *types.ConsolidatedProduct {
	return m.p
}

// Begin appends a provenance entry for a new contributor and returns its index.
func (m *Merger) Begin(entry types.ProvenanceEntry) int {
	entry.FieldsContributed = []string{}
	entry.FieldsShadowed = nil
	m.p.Provenance = append(m.p.Provenance, entry)
	return len(m.p.Provenance) - 1
}

// OfferString offers a value for a top-level scalar field. Blank values are ignored.
func (m *Merger) OfferString(entry int, field, value string, prec types.Precedence) {
	get, ok := scalarFields[field]
	if !ok {
		return
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	slot := get(m.p)
	var current any
	if *slot != nil {
		current = **slot
	}
	if m.offer(entry, field, current, value, prec) {
		*slot = types.Ptr(value)
		m.p.FieldSources[field] = m.source(entry)
	}
}

// OfferAttributes merges raw fields key-wise into attributes. Nested maps merge recursively,
// lists are unioned and scalars follow the precedence rule.
func (m *Merger) OfferAttributes(entry int, attrs map[string]any, prec types.Precedence) {
	if len(attrs) == 0 {
		return
	}
	if m.p.Attributes == nil {
		m.p.Attributes = make(map[string]any)
	}
	before := len(m.contributed(entry))
	m.mergeMap(entry, FieldAttributes, m.p.Attributes, attrs, prec)
	if len(m.contributed(entry)) > before {
		if _, ok := m.p.FieldSources[FieldAttributes]; !ok {
			m.p.FieldSources[FieldAttributes] = m.source(entry)
		}
	}
}

// OfferCertifications unions certification names, order preserving.
func (m *Merger) OfferCertifications(entry int, certs []string) {
	merged, added := unionStrings(m.p.Certifications, certs)
	m.p.Certifications = merged
	if added {
		m.containerContributed(entry, FieldCertifications)
	}
}

// OfferFreeText unions free-text descriptions, order preserving.
func (m *Merger) OfferFreeText(entry int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	merged, added := unionStrings(m.p.FreeText, []string{text})
	m.p.FreeText = merged
	if added {
		m.containerContributed(entry, FieldFreeText)
	}
}

// OfferImageRefs unions image references by reference string. A role declared later fills a
// missing one.
func (m *Merger) OfferImageRefs(entry int, refs []types.ImageRef) {
	added := false
	for _, ref := range refs {
		if strings.TrimSpace(ref.Ref) == "" {
			continue
		}
		found := false
		for i := range m.p.ImageRefs {
			if m.p.ImageRefs[i].Ref == ref.Ref {
				found = true
				if m.p.ImageRefs[i].Role == "" && ref.Role != "" {
					m.p.ImageRefs[i].Role = ref.Role
				}
				break
			}
		}
		if !found {
			m.p.ImageRefs = append(m.p.ImageRefs, ref)
			added = true
		}
	}
	if added {
		m.containerContributed(entry, FieldImageRefs)
	}
}

// AddPrice appends a price observation. Observations are never merged.
func (m *Merger) AddPrice(entry int, obs types.PriceObservation) {
	m.p.Pricing = append(m.p.Pricing, obs)
	m.containerContributed(entry, FieldPricing)
}

// offer decides whether value replaces current at path and updates provenance. It returns
// true when the caller must store value.
func (m *Merger) offer(entry int, path string, current, value any, prec types.Precedence) bool {
	if types.IsNull(value) {
		return false
	}
	if types.IsNull(current) {
		m.take(entry, path, prec)
		return true
	}

	curPrec, known := m.p.FieldPrecedence[path]
	if known && prec < curPrec {
		if prev, ok := m.owner[path]; ok && prev != entry {
			m.drop(prev, path)
			if !sameValue(current, value) {
				m.shadow(prev, path)
			}
		}
		m.take(entry, path, prec)
		return true
	}

	if !sameValue(current, value) {
		m.shadow(entry, path)
	}
	return false
}

func (m *Merger) take(entry int, path string, prec types.Precedence) {
	m.p.FieldPrecedence[path] = prec
	m.owner[path] = entry
	e := &m.p.Provenance[entry]
	e.FieldsContributed = appendOnce(e.FieldsContributed, path)
}

func (m *Merger) drop(entry int, path string) {
	e := &m.p.Provenance[entry]
	out := e.FieldsContributed[:0]
	for _, f := range e.FieldsContributed {
		if f != path {
			out = append(out, f)
		}
	}
	e.FieldsContributed = out
}

func (m *Merger) shadow(entry int, path string) {
	e := &m.p.Provenance[entry]
	e.FieldsShadowed = appendOnce(e.FieldsShadowed, path)
}

func (m *Merger) containerContributed(entry int, field string) {
	e := &m.p.Provenance[entry]
	e.FieldsContributed = appendOnce(e.FieldsContributed, field)
	if strings.Contains(field, ".") {
		return
	}
	if _, ok := m.p.FieldSources[field]; !ok {
		m.p.FieldSources[field] = m.source(entry)
	}
}

func (m *Merger) contributed(entry int) []string {
	return m.p.Provenance[entry].FieldsContributed
}

func (m *Merger) source(entry int) string {
	return m.p.Provenance[entry].SourceName
}

func (m *Merger) mergeMap(entry int, path string, dst, src map[string]any, prec types.Precedence) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sub := path + "." + k
		val := src[k]
		if types.IsNull(val) {
			continue
		}
		cur := dst[k]

		switch v := val.(type) {
		case map[string]any:
			if c, ok := cur.(map[string]any); ok {
				m.mergeMap(entry, sub, c, v, prec)
				continue
			}
			if types.IsNull(cur) {
				child := make(map[string]any, len(v))
				m.mergeMap(entry, sub, child, v, prec)
				dst[k] = child
				continue
			}
		case []any:
			if c, ok := cur.([]any); ok || types.IsNull(cur) {
				merged, added := unionList(c, v)
				dst[k] = merged
				if added {
					m.containerContributed(entry, sub)
				}
				continue
			}
		}

		if m.offer(entry, sub, cur, val, prec) {
			dst[k] = cloneValue(val)
		}
	}
}

// unionList appends the items of add missing from list. Objects are identified by their "id"
// field when present, otherwise by canonical JSON hash; scalars by value.
func unionList(list, add []any) ([]any, bool) {
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		seen[identity(item)] = true
	}
	out := list
	added := false
	for _, item := range add {
		id := identity(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, cloneValue(item))
		added = true
	}
	return out, added
}

func identity(item any) string {
	if obj, ok := item.(map[string]any); ok {
		if id, ok := obj["id"]; ok && !types.IsNull(id) {
			b, _ := json.Marshal(id)
			return "id:" + string(b)
		}
	}
	return "hash:" + canonicalHash(item)
}

// canonicalHash hashes the JSON encoding of v. encoding/json sorts map keys, so equal values
// hash equally.
func canonicalHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return canonicalHash(a) == canonicalHash(b)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

func unionStrings(list, add []string) ([]string, bool) {
	added := false
	for _, s := range add {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		found := false
		for _, existing := range list {
			if strings.EqualFold(existing, s) {
				found = true
				break
			}
		}
		if !found {
			list = append(list, s)
			added = true
		}
	}
	return list, added
}

func appendOnce(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
