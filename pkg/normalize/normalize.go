// Package normalize provides field normalization for duplicate detection.
// All functions are pure; missing or unparseable input normalizes to "".
package normalize

import (
	"strings"
	"unicode"
)

// abbreviations expands common street-type and directional tokens so
// "123 N Main St" and "123 North Main Street" normalize identically.
// Expansion is token-wise: "st" only expands when it stands alone.
var abbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"blvd": "boulevard",
	"dr":   "drive",
	"rd":   "road",
	"ln":   "lane",
	"ct":   "court",
	"cir":  "circle",
	"pl":   "place",
	"hwy":  "highway",
	"pkwy": "parkway",
	"apt":  "apartment",
	"ste":  "suite",
	"n":    "north",
	"s":    "south",
	"e":    "east",
	"w":    "west",
	"ne":   "northeast",
	"nw":   "northwest",
	"se":   "southeast",
	"sw":   "southwest",
}

// nameSuffixes are stripped from owner names so "John Smith Jr" matches
// "John Smith" and "Smith Family Trust" matches "Smith Family".
var nameSuffixes = []string{"jr", "sr", "ii", "iii", "iv", "estate", "trust", "llc"}

// Address normalizes a street address: lowercase, punctuation stripped,
// abbreviations expanded, whitespace collapsed.
func Address(s string) string {
	s = strings.ToLower(s)

	var cleaned strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cleaned.WriteRune(r)
		case unicode.IsSpace(r):
			cleaned.WriteRune(' ')
		}
		// `.,#` and any other punctuation drop out
	}

	tokens := strings.Fields(cleaned.String())
	for i, token := range tokens {
		if full, ok := abbreviations[token]; ok {
			tokens[i] = full
		}
	}

	return strings.Join(tokens, " ")
}

// FullAddress normalizes the complete address including city, state and zip.
// Equality of two non-empty results is an exact duplicate match.
func FullAddress(line1, line2, city, state, zip string) string {
	l1 := Address(line1)
	if l1 == "" {
		return ""
	}
	parts := []string{l1}
	if l2 := Address(line2); l2 != "" {
		parts = append(parts, l2)
	}
	if c := Address(city); c != "" {
		parts = append(parts, c)
	}
	if st := strings.ToLower(strings.TrimSpace(state)); st != "" {
		parts = append(parts, st)
	}
	if z := ZipCode(zip); z != "" {
		parts = append(parts, z)
	}
	return strings.Join(parts, " ")
}

// OwnerName normalizes a person or entity name: lowercase, punctuation
// stripped, trailing suffixes removed, whitespace collapsed.
func OwnerName(s string) string {
	s = strings.ToLower(s)

	var cleaned strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cleaned.WriteRune(r)
		case unicode.IsSpace(r):
			cleaned.WriteRune(' ')
		}
	}

	tokens := strings.Fields(cleaned.String())
	for len(tokens) > 1 && isNameSuffix(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

func isNameSuffix(token string) bool {
	for _, suffix := range nameSuffixes {
		if token == suffix {
			return true
		}
	}
	return false
}

// ZipCode keeps 5- or 9-digit US zips, anything else normalizes to "".
func ZipCode(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 5 || len(d) == 9 {
		return d
	}
	return ""
}

// Zip5 returns the 5-digit prefix of a normalized zip, for bucketing.
func Zip5(s string) string {
	z := ZipCode(s)
	if len(z) >= 5 {
		return z[:5]
	}
	return ""
}
