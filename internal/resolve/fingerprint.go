package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Fingerprint prefixes for records that cannot be identified by manufacturer and model.
const (
	TextPrefix      = "text:"
	SyntheticPrefix = "synthetic:"
)

// bucketDecimals is the rounding granularity of the power bucket per category.
var bucketDecimals = map[types.Category]int{
	types.CategoryPanel:     0, // 1 W
	types.CategoryInverter:  1, // 0.1 kW
	types.CategoryKit:       2, // 0.01 kWp
	types.CategoryBattery:   0, // 1 Ah
	types.CategoryEVCharger: 1, // 0.1 kW
}

// PowerBucket formats a nominal rating, already in the category's canonical unit, at the
// category's granularity. Categories without a rating have an empty bucket.
func PowerBucket(category types.Category, value float64) string {
	decimals, ok := bucketDecimals[category]
	if !ok || value <= 0 {
		return ""
	}
	return strconv.FormatFloat(value, 'f', decimals, 64)
}

// Fingerprint is lower(manufacturer)|lower(model)|bucket|category.
func Fingerprint(manufacturer, model, bucket string, category types.Category) string {
	return strings.Join([]string{
		textnorm.Fold(manufacturer),
		textnorm.Fold(model),
		bucket,
		string(category),
	}, "|")
}

// TextFingerprint identifies a record by its source and folded free text. The source is part
// of the key so such records never merge across sources.
func TextFingerprint(sourceName, freeText string) string {
	sum := sha256.Sum256([]byte(sourceName + "\n" + textnorm.Fold(freeText)))
	return TextPrefix + hex.EncodeToString(sum[:])
}

// SyntheticFingerprint identifies a record that has neither identity fields nor text.
func SyntheticFingerprint(sourceName, sourceID string, row int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", sourceName, sourceID, row)))
	return SyntheticPrefix + hex.EncodeToString(sum[:])
}
