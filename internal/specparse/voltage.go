package specparse

import (
	"regexp"
	"strconv"
)

var voltagePattern = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:v\s*)?(?:/\s*(\d{2,3}))?\s*v(?:ca|cc|ac|dc)?\b`)

var singleVoltages = map[int]bool{12: true, 24: true, 48: true, 127: true, 220: true, 380: true}

// Recognized split-phase pairs, keyed high/low.
var pairedVoltages = map[[2]int]bool{{220, 127}: true, {380, 220}: true}

// ParseVoltage returns the first recognized voltage in s as a canonical token:
// 12V, 24V, 48V, 127V, 220V, 380V, 220/127V or 380/220V.
func ParseVoltage(s string) (string, bool) {
	for _, m := range voltagePattern.FindAllStringSubmatch(s, -1) {
		a, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[2] == "" {
			if singleVoltages[a] {
				return strconv.Itoa(a) + "V", true
			}
			continue
		}
		b, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		hi, lo := a, b
		if lo > hi {
			hi, lo = lo, hi
		}
		if pairedVoltages[[2]int{hi, lo}] {
			return strconv.Itoa(hi) + "/" + strconv.Itoa(lo) + "V", true
		}
	}
	return "", false
}
