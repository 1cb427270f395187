package utils

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true,
}

// SecureFilename reduces an uploaded file name to a safe ASCII base name:
// accents are folded, path separators become spaces, anything outside
// [A-Za-z0-9._-] is dropped and runs of whitespace collapse to "_". The
// result may be empty, in which case the upload should be rejected.
func SecureFilename(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r > unicode.MaxASCII:
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	clean := strings.Join(strings.Fields(b.String()), "_")
	clean = strings.Trim(clean, "._")
	if reservedNames[strings.ToUpper(strings.TrimSuffix(clean, filepath.Ext(clean)))] {
		clean = "_" + clean
	}
	return clean
}

// ReplaceExt swaps the extension of path's base name for ext.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
