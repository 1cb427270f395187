package score

import (
	"math"
	"strconv"

	"github.com/beevik/etree"
)

// Divisions is the number of MusicXML duration units per quarter note used
// for MIDI imports. 8 gives a 32nd-note grid.
const Divisions = 8

// durationValues are the note lengths, in divisions, that can be written as a
// single (possibly dotted) note. Longest first.
var durationValues = []int{48, 32, 24, 16, 12, 8, 6, 4, 3, 2, 1}

var noteTypes = map[int]struct {
	name string
	dots int
}{
	48: {"whole", 1},
	32: {"whole", 0},
	24: {"half", 1},
	16: {"half", 0},
	12: {"quarter", 1},
	8:  {"quarter", 0},
	6:  {"eighth", 1},
	4:  {"eighth", 0},
	3:  {"16th", 1},
	2:  {"16th", 0},
	1:  {"32nd", 0},
}

// splitDuration breaks d into writable note lengths, longest first.
func splitDuration(d int) []int {
	var out []int
	for _, v := range durationValues {
		for d >= v {
			out = append(out, v)
			d -= v
		}
	}
	return out
}

var pitchClasses = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"D", 1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"A", 1}, {"B", 0},
}

// spellPitch returns the sharp spelling of a MIDI key.
func spellPitch(key uint8) (step string, alter, octave int) {
	pc := pitchClasses[int(key)%12]
	return pc.step, pc.alter, int(key)/12 - 1
}

// gmFamilies are the General MIDI instrument families, eight programs each.
var gmFamilies = [16]string{
	"Piano", "Chromatic Percussion", "Organ", "Guitar",
	"Bass", "Strings", "Ensemble", "Brass",
	"Reed", "Pipe", "Synth Lead", "Synth Pad",
	"Synth Effects", "Ethnic", "Percussive", "Sound Effects",
}

func gmFamily(program int) string {
	if program < 0 || program > 127 {
		return gmFamilies[0]
	}
	return gmFamilies[program/8]
}

type clef struct {
	sign string
	line int
}

var (
	trebleClef     = clef{"G", 2}
	bassClef       = clef{"F", 4}
	percussionClef = clef{"percussion", 0}
)

func newMeasure(number int) *etree.Element {
	m := etree.NewElement("measure")
	m.CreateAttr("number", strconv.Itoa(number))
	return m
}

// addAttributes appends the opening <attributes> block of a part.
func addAttributes(m *etree.Element, beats, beatType int, c clef) {
	attrs := m.CreateElement("attributes")
	attrs.CreateElement("divisions").SetText(strconv.Itoa(Divisions))
	attrs.CreateElement("key").CreateElement("fifths").SetText("0")
	tm := attrs.CreateElement("time")
	tm.CreateElement("beats").SetText(strconv.Itoa(beats))
	tm.CreateElement("beat-type").SetText(strconv.Itoa(beatType))
	ce := attrs.CreateElement("clef")
	ce.CreateElement("sign").SetText(c.sign)
	if c.line > 0 {
		ce.CreateElement("line").SetText(strconv.Itoa(c.line))
	}
}

func addTempo(m *etree.Element, bpm float64) {
	bpm = math.Round(bpm*100) / 100
	text := strconv.FormatFloat(bpm, 'f', -1, 64)

	dir := m.CreateElement("direction")
	dir.CreateAttr("placement", "above")
	metro := dir.CreateElement("direction-type").CreateElement("metronome")
	metro.CreateElement("beat-unit").SetText("quarter")
	metro.CreateElement("per-minute").SetText(text)
	dir.CreateElement("sound").CreateAttr("tempo", text)
}

// tie marks a note segment as continuing from and/or into its neighbours.
type tie struct {
	stop, start bool
}

// addNote appends one note (or one chord member when chord is set) of
// duration d. unpitched writes the pitch as a percussion display position.
func addNote(m *etree.Element, key uint8, d int, chord, unpitched bool, t tie) {
	n := m.CreateElement("note")
	if chord {
		n.CreateElement("chord")
	}
	step, alter, octave := spellPitch(key)
	if unpitched {
		up := n.CreateElement("unpitched")
		up.CreateElement("display-step").SetText(step)
		up.CreateElement("display-octave").SetText(strconv.Itoa(octave))
	} else {
		p := n.CreateElement("pitch")
		p.CreateElement("step").SetText(step)
		if alter != 0 {
			p.CreateElement("alter").SetText(strconv.Itoa(alter))
		}
		p.CreateElement("octave").SetText(strconv.Itoa(octave))
	}
	n.CreateElement("duration").SetText(strconv.Itoa(d))
	if t.stop {
		n.CreateElement("tie").CreateAttr("type", "stop")
	}
	if t.start {
		n.CreateElement("tie").CreateAttr("type", "start")
	}
	n.CreateElement("voice").SetText("1")
	addType(n, d)
	if unpitched {
		n.CreateElement("notehead").SetText("normal")
	}
	if t.stop || t.start {
		notations := n.CreateElement("notations")
		if t.stop {
			notations.CreateElement("tied").CreateAttr("type", "stop")
		}
		if t.start {
			notations.CreateElement("tied").CreateAttr("type", "start")
		}
	}
}

// addRest appends a rest of duration d; a whole-measure rest carries no type.
func addRest(m *etree.Element, d int, wholeMeasure bool) {
	n := m.CreateElement("note")
	r := n.CreateElement("rest")
	if wholeMeasure {
		r.CreateAttr("measure", "yes")
	}
	n.CreateElement("duration").SetText(strconv.Itoa(d))
	n.CreateElement("voice").SetText("1")
	if !wholeMeasure {
		addType(n, d)
	}
}

func addType(n *etree.Element, d int) {
	nt, ok := noteTypes[d]
	if !ok {
		return
	}
	n.CreateElement("type").SetText(nt.name)
	for i := 0; i < nt.dots; i++ {
		n.CreateElement("dot")
	}
}

// restMeasure is a 4/4 measure holding only a whole-measure rest.
func restMeasure(number int) *etree.Element {
	m := newMeasure(number)
	m.CreateElement("attributes").CreateElement("divisions").SetText(strconv.Itoa(Divisions))
	addRest(m, 4*Divisions, true)
	return m
}
