package archive

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/himanishpuri/playscore/pkg/utils"
)

// musicXMLRoots are the accepted root element names, compared lower-cased
// with any namespace removed.
var musicXMLRoots = map[string]bool{
	"score-partwise": true,
	"score-timewise": true,
	"score":          true,
}

// IsMusicXML reports whether b is a well-formed XML document whose root
// element is a MusicXML score. It never fails: malformed input is simply not
// MusicXML.
func IsMusicXML(b []byte) bool {
	root, err := RootElement(b)
	if err != nil {
		return false
	}
	return musicXMLRoots[strings.ToLower(root)]
}

// RootElement fully tokenizes b and returns the local name of its single root
// element. Any well-formedness problem is returned as an error. A byte order
// mark and invalid UTF-8 are tolerated, see utils.CleanXML.
func RootElement(b []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(utils.CleanXML(b)))
	dec.Strict = true
	dec.CharsetReader = utils.CharsetReader

	var root string
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if root != "" {
					return "", fmt.Errorf("second root element <%s>", t.Name.Local)
				}
				root = t.Name.Local
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return "", fmt.Errorf("text outside the root element")
			}
		}
	}
	if root == "" {
		return "", fmt.Errorf("no root element")
	}
	return root, nil
}
