package utils

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var xmlEncodingDecl = regexp.MustCompile(`^<\?xml[^>]*?\sencoding\s*=\s*["']([^"']*)["']`)

// CharsetReader decodes the encodings an XML declaration may name
// (ISO-8859-1, Windows-1252, UTF-16, ...) into UTF-8. It matches the
// signature of xml.Decoder.CharsetReader.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// CleanXML prepares an XML document for the strict decoder: a leading UTF-8
// byte order mark is removed and, when the document is (or claims to be)
// UTF-8, invalid byte sequences become U+FFFD. Documents declaring another
// encoding are left to CharsetReader. b is never modified.
func CleanXML(b []byte) []byte {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) || !declaresUTF8(b) {
		return b
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return bytes.ToValidUTF8(b, []byte("\uFFFD"))
	}
	return out
}

// declaresUTF8 reports whether the XML declaration names UTF-8 or no
// encoding at all.
func declaresUTF8(b []byte) bool {
	m := xmlEncodingDecl.FindSubmatch(b)
	if m == nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(string(m[1]))) {
	case "", "utf-8", "utf8":
		return true
	default:
		return false
	}
}
