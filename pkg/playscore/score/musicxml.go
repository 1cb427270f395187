package score

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/himanishpuri/playscore/pkg/utils"
)

const xlinkNamespace = "http://www.w3.org/1999/xlink"

const partwiseDoctype = `DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd"`

// idTags are the elements whose id attribute is scoped to a part and must
// follow the part when it is renumbered.
var idTags = map[string]bool{
	"score-instrument": true,
	"midi-instrument":  true,
	"midi-device":      true,
	"instrument":       true,
	"player":           true,
}

// ParseMusicXML reads a partwise, timewise or generic <score> document.
func ParseMusicXML(data []byte) (*Score, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = utils.CharsetReader
	if err := doc.ReadFromBytes(utils.CleanXML(data)); err != nil {
		return nil, fmt.Errorf("parsing MusicXML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parsing MusicXML: %w", ErrNotMusicXML)
	}

	s := &Score{Title: scoreTitle(root)}
	switch strings.ToLower(root.Tag) {
	case "score-partwise":
		s.Parts = parsePartwise(root)
	case "score-timewise":
		s.Parts = parseTimewise(root)
	case "score":
		s.Loose = root.FindElements(".//measure")
	default:
		return nil, fmt.Errorf("root <%s>: %w", root.Tag, ErrNotMusicXML)
	}
	return s, nil
}

func scoreTitle(root *etree.Element) string {
	for _, path := range []string{"./work/work-title", "./movement-title"} {
		if el := root.FindElement(path); el != nil {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// partHeaders indexes the <score-part> declarations by id, keeping
// declaration order.
func partHeaders(root *etree.Element) (map[string]*etree.Element, []string) {
	headers := make(map[string]*etree.Element)
	var order []string
	pl := root.SelectElement("part-list")
	if pl == nil {
		return headers, order
	}
	for _, sp := range pl.SelectElements("score-part") {
		id := sp.SelectAttrValue("id", "")
		if _, dup := headers[id]; dup {
			continue
		}
		headers[id] = sp
		order = append(order, id)
	}
	return headers, order
}

func partName(header *etree.Element, fallback string) string {
	if header != nil {
		if el := header.SelectElement("part-name"); el != nil {
			if name := strings.TrimSpace(el.Text()); name != "" {
				return name
			}
		}
	}
	return fallback
}

func parsePartwise(root *etree.Element) []*Part {
	headers, _ := partHeaders(root)
	var parts []*Part
	for _, pe := range root.SelectElements("part") {
		id := pe.SelectAttrValue("id", "")
		parts = append(parts, &Part{
			ID:       id,
			Name:     partName(headers[id], id),
			Header:   headers[id],
			Measures: pe.SelectElements("measure"),
		})
	}
	return parts
}

// parseTimewise regroups measure-major content into parts.
func parseTimewise(root *etree.Element) []*Part {
	headers, order := partHeaders(root)
	byID := make(map[string]*Part)
	var parts []*Part
	get := func(id string) *Part {
		if p, ok := byID[id]; ok {
			return p
		}
		p := &Part{ID: id, Name: partName(headers[id], id), Header: headers[id]}
		byID[id] = p
		parts = append(parts, p)
		return p
	}
	for _, id := range order {
		get(id)
	}

	for _, m := range root.SelectElements("measure") {
		for _, pe := range m.SelectElements("part") {
			p := get(pe.SelectAttrValue("id", ""))
			measure := etree.NewElement("measure")
			for _, a := range m.Attr {
				measure.CreateAttr(a.FullKey(), a.Value)
			}
			for _, child := range pe.ChildElements() {
				measure.AddChild(child.Copy())
			}
			p.Measures = append(p.Measures, measure)
		}
	}
	return parts
}

// WriteMusicXML serializes s as a MusicXML 4.0 partwise document. Parts are
// renumbered P1..Pn in order, and part-scoped instrument ids follow.
func WriteMusicXML(s *Score) ([]byte, error) {
	if s == nil || len(s.Parts) == 0 {
		return nil, ErrEmptyScore
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="no"`)
	doc.CreateDirective(partwiseDoctype)

	root := doc.CreateElement("score-partwise")
	root.CreateAttr("version", "4.0")
	if s.Title != "" {
		root.CreateElement("work").CreateElement("work-title").SetText(s.Title)
	}
	root.CreateElement("identification").
		CreateElement("encoding").
		CreateElement("software").SetText("playscore")

	xlink := false
	partList := root.CreateElement("part-list")
	for i, p := range s.Parts {
		sp := p.header(partID(i))
		xlink = unqualify(sp) || xlink
		partList.AddChild(sp)
	}

	for i, p := range s.Parts {
		id := partID(i)
		pe := root.CreateElement("part")
		pe.CreateAttr("id", id)
		if len(p.Measures) == 0 {
			pe.AddChild(restMeasure(1))
			continue
		}
		for _, m := range p.Measures {
			c := m.Copy()
			renameIDs(c, p.ID, id)
			xlink = unqualify(c) || xlink
			pe.AddChild(c)
		}
	}
	if xlink {
		root.CreateAttr("xmlns:xlink", xlinkNamespace)
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing MusicXML: %w", err)
	}
	return out, nil
}

func partID(i int) string {
	return fmt.Sprintf("P%d", i+1)
}

func (p *Part) header(id string) *etree.Element {
	var sp *etree.Element
	if p.Header != nil {
		sp = p.Header.Copy()
		for _, child := range sp.ChildElements() {
			renameIDs(child, p.ID, id)
		}
	} else {
		sp = etree.NewElement("score-part")
	}
	sp.CreateAttr("id", id)
	if sp.SelectElement("part-name") == nil {
		name := etree.NewElement("part-name")
		name.SetText(p.Name)
		sp.InsertChildAt(0, name)
	}
	return sp
}

// renameIDs rewrites part-scoped ids under el from oldID to newID: "P2"
// becomes newID, "P2-I1" becomes newID+"-I1", and an unprefixed id such as
// "I1" becomes newID+"-I1" so it stays unique after merging.
func renameIDs(el *etree.Element, oldID, newID string) {
	if idTags[el.Tag] {
		if v := el.SelectAttrValue("id", ""); v != "" {
			el.CreateAttr("id", scopedID(v, oldID, newID))
		}
	}
	for _, child := range el.ChildElements() {
		renameIDs(child, oldID, newID)
	}
}

func scopedID(v, oldID, newID string) string {
	switch {
	case oldID != "" && v == oldID:
		return newID
	case oldID != "" && strings.HasPrefix(v, oldID+"-"):
		return newID + v[len(oldID):]
	default:
		return newID + "-" + v
	}
}

// unqualify drops namespace prefixes and declarations from a copied subtree
// so it is valid under the unprefixed output root. xml: and xlink: attributes
// keep their prefix; the result reports whether any xlink: attribute remains.
func unqualify(el *etree.Element) bool {
	xlink := false
	el.Space = ""
	attrs := el.Attr[:0]
	for _, a := range el.Attr {
		switch {
		case a.Space == "xmlns", a.Space == "" && a.Key == "xmlns":
			continue
		case a.Space == "xml":
		case a.Space == "xlink":
			xlink = true
		default:
			a.Space = ""
		}
		attrs = append(attrs, a)
	}
	el.Attr = attrs
	for _, child := range el.ChildElements() {
		xlink = unqualify(child) || xlink
	}
	return xlink
}
