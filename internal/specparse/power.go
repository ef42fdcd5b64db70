package specparse

import (
	"regexp"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

var powerPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(mwp|mw|kwp|kw|wp|w)(?:[^a-z0-9]|$)`)

// Units that, when they follow a bare number, mean the number is not a power rating.
var nonPowerUnits = map[string]bool{
	"v": true, "vca": true, "vcc": true, "vac": true, "vdc": true,
	"a": true, "ah": true, "kwh": true, "wh": true, "%": true,
	"mm": true, "mm2": true, "mm²": true, "m": true, "cm": true, "kg": true,
	"x": true, "un": true, "pcs": true, "unidades": true, "mppt": true, "mppts": true,
	"celulas": true, "cells": true, "paineis": true, "modulos": true, "placas": true,
}

// ParsePower parses a power rating and returns it in watts. A bare number is inferred:
// below 10 it is kW, otherwise W.
func ParsePower(s string) (float64, bool) {
	return ParsePowerAs(s, types.UnitNone)
}

// ParsePowerAs parses a power rating, reading a bare number in the given unit. With
// UnitNone the bare-number heuristic of ParsePower applies.
func ParsePowerAs(s string, bare types.PowerUnit) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if m := powerPattern.FindStringSubmatch(s); m != nil {
		return unitToWatts(m[1], m[2])
	}
	if !isBareNumber(s) {
		return 0, false
	}
	var (
		v  float64
		ok bool
	)
	switch bare {
	case types.UnitKW, types.UnitKWp:
		v, ok = parseDecimalToken(s)
	default:
		v, ok = ParseNumber(s)
	}
	if !ok {
		return 0, false
	}
	return bareToWatts(v, bare), true
}

// PowerFrom reads a raw power value in watts. Typed numbers are taken as they are, in the
// bare unit; strings go through ParsePowerAs.
func PowerFrom(v any, bare types.PowerUnit) (float64, bool) {
	if f, ok := Numeric(v); ok {
		return bareToWatts(f, bare), f > 0
	}
	s, ok := String(v)
	if !ok {
		return 0, false
	}
	return ParsePowerAs(s, bare)
}

// FindPower scans free text for a power rating. Unit-qualified values win; otherwise the
// first standalone number not followed by another unit is read with the bare-number heuristic.
func FindPower(text string) (float64, bool) {
	if m := powerPattern.FindStringSubmatch(text); m != nil {
		return unitToWatts(m[1], m[2])
	}

	fields := strings.Fields(text)
	for i, f := range fields {
		tok := strings.Trim(f, "()[]{},;:")
		if !isBareNumber(tok) {
			continue
		}
		if i+1 < len(fields) && nonPowerUnits[textnorm.Fold(strings.Trim(fields[i+1], "()[]{},;:."))] {
			continue
		}
		v, ok := parseNumberToken(tok)
		if !ok || v == 0 {
			continue
		}
		return bareToWatts(v, types.UnitNone), true
	}
	return 0, false
}

// ConvertPower expresses watts in unit. UnitAh and UnitNone return watts unchanged.
func ConvertPower(watts float64, unit types.PowerUnit) float64 {
	switch unit {
	case types.UnitKW, types.UnitKWp:
		return watts / 1000
	default:
		return watts
	}
}

func unitToWatts(num, unit string) (float64, bool) {
	switch strings.ToLower(unit) {
	case "mw", "mwp":
		v, ok := parseDecimalToken(num)
		return v * 1_000_000, ok
	case "kw", "kwp":
		v, ok := parseDecimalToken(num)
		return v * 1000, ok
	default:
		return parseNumberToken(num)
	}
}

func bareToWatts(v float64, bare types.PowerUnit) float64 {
	switch bare {
	case types.UnitW:
		return v
	case types.UnitKW, types.UnitKWp:
		return v * 1000
	}
	if v < 10 {
		return v * 1000
	}
	return v
}

func isBareNumber(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && numberPattern.FindString(s) == s
}

var kitPowerPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(mwp|kwp)(?:[^a-z0-9]|$)`)

// FindKitPower prefers a kWp/MWp rating so component ratings ("10 painéis 560W") in kit
// titles do not win over the system rating.
func FindKitPower(text string) (float64, bool) {
	if m := kitPowerPattern.FindStringSubmatch(text); m != nil {
		return unitToWatts(m[1], m[2])
	}
	return FindPower(text)
}
