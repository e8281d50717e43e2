// Package export writes analysis results to interchange formats: GeoJSON
// layers, an ESRI shapefile, and an XLSX summary workbook.
package export

import (
	"strings"
)

// slugify lowercases a name and collapses anything outside [a-z0-9] to a
// single hyphen, yielding a safe filename stem.
func slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "aoi"
	}
	return slug
}
