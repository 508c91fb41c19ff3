// Package identity derives deterministic keys for points of interest so the
// same physical place is stored exactly once across routes.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// StableID computes a deterministic identity for a POI from its name and
// coordinates. The name is case-folded, stripped of parenthetical qualifiers
// and punctuation, and whitespace-collapsed; coordinates are rounded to four
// decimal places (roughly 11 meters). Same inputs always yield the same
// output, across processes and over time. An empty name still produces a
// deterministic, degenerate key.
func StableID(name string, lat, lng float64) string {
	return fmt.Sprintf("%s_%.4f_%.4f", normalizeName(name), round4(lat), round4(lng))
}

// ContentHash is the SHA-256 hex digest of the stable id, used where a short
// fixed-length unique index key is preferred.
func ContentHash(name string, lat, lng float64) string {
	sum := sha256.Sum256([]byte(StableID(name, lat, lng)))
	return hex.EncodeToString(sum[:])
}

func normalizeName(name string) string {
	name = stripParentheticals(name)
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	lastSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune('_')
				lastSpace = true
			}
		}
		// Remaining punctuation is dropped outright.
	}
	return strings.TrimSuffix(b.String(), "_")
}

func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
