// Package sku allocates the stable human-readable product ids
// <DIST>-<TYPE>-<POWER>-<BRAND>-<TIER>-<CERT>-<SEQ>.
package sku

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// TierBronze is the tier of every base catalog entry. Other tiers are a pricing concern.
const TierBronze = "BRZ"

const (
	brandLen   = 8
	genericTag = "GENERIC"
)

// Key carries what an id is built from.
type Key struct {
	Dist        string // distributor code of the first contributing source
	Category    types.Category
	PowerBucket string // nominal rating in the category's canonical unit
	Brand       string
	Certified   bool
	Fingerprint string
}

// DistCode returns a three-letter distributor code: the configured code when valid, else the
// first letters of the source name padded with X.
func DistCode(code, sourceName string) string {
	if c := letters(code); len(c) == 3 {
		return c
	}
	c := letters(sourceName)
	if len(c) >= 3 {
		return c[:3]
	}
	return c + strings.Repeat("X", 3-len(c))
}

func letters(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(textnorm.AlnumOnly(s)) {
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Power formats the POWER segment: 550W for panels, kWp x 100 with KWP for kits, watts for
// inverters and chargers, AH for batteries, NA otherwise.
func Power(category types.Category, bucket string) string {
	v, ok := specparse.ParseNumber(bucket)
	if !ok || v <= 0 {
		return "NA"
	}
	switch category {
	case types.CategoryPanel:
		return formatInt(v) + "W"
	case types.CategoryKit:
		return formatInt(v*100) + "KWP"
	case types.CategoryInverter, types.CategoryEVCharger:
		return formatInt(v*1000) + "W"
	case types.CategoryBattery:
		return formatInt(v) + "AH"
	default:
		return "NA"
	}
}

func formatInt(v float64) string {
	return strconv.FormatInt(int64(math.Round(v)), 10)
}

// Brand sanitizes a manufacturer into at most eight upper-case alphanumerics.
func Brand(manufacturer string) string {
	b := strings.ToUpper(textnorm.AlnumOnly(manufacturer))
	if b == "" {
		return genericTag
	}
	if len(b) > brandLen {
		b = b[:brandLen]
	}
	return b
}

// Cert returns CERT or NONE.
func Cert(certified bool) string {
	if certified {
		return "CERT"
	}
	return "NONE"
}

// Allocate returns one id per key, in input order. Sequence numbers are assigned within
// (dist, type, brand) in (category, fingerprint) order, so the result does not depend on the
// order of keys. A collision bumps the sequence.
func Allocate(keys []Key) []string {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if ka.Category != kb.Category {
			return ka.Category < kb.Category
		}
		if ka.Fingerprint != kb.Fingerprint {
			return ka.Fingerprint < kb.Fingerprint
		}
		return ka.Dist < kb.Dist
	})

	ids := make([]string, len(keys))
	seq := make(map[string]int)
	used := make(map[string]bool, len(keys))
	for _, i := range order {
		k := keys[i]
		dist := DistCode(k.Dist, k.Dist)
		brand := Brand(k.Brand)
		typ := k.Category.TypeCode()
		group := dist + "|" + typ + "|" + brand
		for {
			seq[group]++
			id := fmt.Sprintf("%s-%s-%s-%s-%s-%s-%03d",
				dist, typ, Power(k.Category, k.PowerBucket), brand, TierBronze, Cert(k.Certified), seq[group])
			if !used[id] {
				used[id] = true
				ids[i] = id
				break
			}
		}
	}
	return ids
}
