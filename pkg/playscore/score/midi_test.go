package score

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/beevik/etree"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const quarter = 480

// buildMIDI serializes the given tracks as a format 1 file with 480 ticks
// per quarter note.
func buildMIDI(t *testing.T, tracks ...smf.Track) []byte {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(quarter)
	for _, tr := range tracks {
		if err := s.Add(tr); err != nil {
			t.Fatalf("Failed to add track: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("Failed to write MIDI: %v", err)
	}
	return buf.Bytes()
}

func conductorTrack(name string, bpm float64, num, den uint8) smf.Track {
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(name))
	tr.Add(0, smf.MetaMeter(num, den))
	tr.Add(0, smf.MetaTempo(bpm))
	tr.Close(0)
	return tr
}

func noteElements(m *etree.Element) []*etree.Element {
	return m.SelectElements("note")
}

func duration(t *testing.T, n *etree.Element) int {
	t.Helper()
	d, err := strconv.Atoi(n.SelectElement("duration").Text())
	if err != nil {
		t.Fatalf("bad duration: %v", err)
	}
	return d
}

func TestParseMIDIChordsAndTitle(t *testing.T) {
	var piano smf.Track
	piano.Add(0, smf.MetaTrackSequenceName("Piano"))
	piano.Add(0, midi.ProgramChange(0, 0))
	piano.Add(0, midi.NoteOn(0, 60, 100))
	piano.Add(quarter, midi.NoteOff(0, 60))
	piano.Add(0, midi.NoteOn(0, 64, 90))
	piano.Add(0, midi.NoteOn(0, 67, 90))
	piano.Add(2*quarter, midi.NoteOff(0, 64))
	piano.Add(0, midi.NoteOn(0, 67, 0))
	piano.Close(0)

	s, err := ParseMIDI(buildMIDI(t, conductorTrack("Etude", 90, 3, 4), piano))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if s.Title != "Etude" {
		t.Errorf("Title = %q, want Etude", s.Title)
	}
	if len(s.Parts) != 1 {
		t.Fatalf("len(Parts) = %d, want 1", len(s.Parts))
	}
	p := s.Parts[0]
	if p.Name != "Piano" || p.ID != "P1" {
		t.Errorf("part = %s %q", p.ID, p.Name)
	}
	if len(p.Measures) != 1 {
		t.Fatalf("len(Measures) = %d, want 1", len(p.Measures))
	}

	m := p.Measures[0]
	if got := m.FindElement("./attributes/time/beats").Text(); got != "3" {
		t.Errorf("beats = %s, want 3", got)
	}
	if got := m.FindElement("./attributes/clef/sign").Text(); got != "G" {
		t.Errorf("clef = %s, want G", got)
	}
	if got := m.FindElement("./direction/sound").SelectAttrValue("tempo", ""); got != "90" {
		t.Errorf("tempo = %s, want 90", got)
	}

	notes := noteElements(m)
	if len(notes) != 3 {
		t.Fatalf("len(notes) = %d, want 3", len(notes))
	}
	wantDur := []int{8, 16, 16}
	wantStep := []string{"C", "E", "G"}
	for i, n := range notes {
		if d := duration(t, n); d != wantDur[i] {
			t.Errorf("note %d duration = %d, want %d", i, d, wantDur[i])
		}
		if s := n.FindElement("./pitch/step").Text(); s != wantStep[i] {
			t.Errorf("note %d step = %s, want %s", i, s, wantStep[i])
		}
	}
	if notes[1].SelectElement("chord") != nil || notes[2].SelectElement("chord") == nil {
		t.Error("second chord member should carry <chord/>")
	}
	if p.Header.FindElement("./midi-instrument/midi-program").Text() != "1" {
		t.Error("midi-program should be recorded 1-based")
	}
}

func TestParseMIDITiesAcrossBarline(t *testing.T) {
	var tr smf.Track
	tr.Add(2*quarter, midi.NoteOn(0, 72, 100))
	tr.Add(3*quarter, midi.NoteOff(0, 72))
	tr.Close(0)

	s, err := ParseMIDI(buildMIDI(t, tr))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(s.Parts) != 1 || len(s.Parts[0].Measures) != 2 {
		t.Fatalf("want one part with two measures, got %+v", s.Parts)
	}
	m1, m2 := s.Parts[0].Measures[0], s.Parts[0].Measures[1]

	n1 := noteElements(m1)
	if len(n1) != 2 || n1[0].SelectElement("rest") == nil || duration(t, n1[0]) != 16 {
		t.Fatalf("measure 1 should open with a half rest")
	}
	if duration(t, n1[1]) != 16 || n1[1].FindElement("./tie[@type='start']") == nil {
		t.Error("measure 1 note should be a half tied forward")
	}

	n2 := noteElements(m2)
	if len(n2) != 2 {
		t.Fatalf("measure 2 has %d notes, want 2", len(n2))
	}
	if duration(t, n2[0]) != 8 || n2[0].FindElement("./tie[@type='stop']") == nil {
		t.Error("measure 2 should open with a quarter tied back")
	}
	if n2[0].FindElement("./tie[@type='start']") != nil {
		t.Error("last segment must not tie forward")
	}
	if n2[1].SelectElement("rest") == nil || duration(t, n2[1]) != 24 {
		t.Error("measure 2 should close with a dotted half rest")
	}
	if n2[1].SelectElement("dot") == nil {
		t.Error("dotted half rest should carry <dot/>")
	}
}

func TestParseMIDIPartsPerChannel(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(9, 36, 100))
	tr.Add(0, midi.NoteOn(1, 40, 100))
	tr.Add(0, midi.ProgramChange(1, 33))
	tr.Add(quarter, midi.NoteOff(9, 36))
	tr.Add(0, midi.NoteOff(1, 40))
	tr.Close(0)

	s, err := ParseMIDI(buildMIDI(t, tr))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(s.Parts) != 2 {
		t.Fatalf("len(Parts) = %d, want 2", len(s.Parts))
	}
	bass, drums := s.Parts[0], s.Parts[1]
	if bass.Name != "Bass" {
		t.Errorf("channel 2 name = %q, want Bass", bass.Name)
	}
	if got := bass.Measures[0].FindElement("./attributes/clef/sign").Text(); got != "F" {
		t.Errorf("bass clef = %s, want F", got)
	}
	if drums.Name != "Percussion" {
		t.Errorf("channel 10 name = %q, want Percussion", drums.Name)
	}
	if drums.Measures[0].FindElement("./note/unpitched") == nil {
		t.Error("percussion notes should be unpitched")
	}
}

func TestParseMIDIWithoutNotes(t *testing.T) {
	s, err := ParseMIDI(buildMIDI(t, conductorTrack("Silence", 120, 4, 4)))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(s.Parts) != 0 {
		t.Errorf("len(Parts) = %d, want 0", len(s.Parts))
	}
	if s.Title != "Silence" {
		t.Errorf("Title = %q", s.Title)
	}
}

func TestParseMIDIUncountableMeterFallsBackToCommonTime(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(quarter, midi.NoteOff(0, 60))
	tr.Close(0)

	s, err := ParseMIDI(buildMIDI(t, conductorTrack("Odd", 120, 5, 64), tr))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(s.Parts) != 1 || len(s.Parts[0].Measures) != 1 {
		t.Fatalf("want one part with one measure, got %+v", s.Parts)
	}
	m := s.Parts[0].Measures[0]
	if got := m.FindElement("./attributes/time/beats").Text(); got != "4" {
		t.Errorf("beats = %s, want 4", got)
	}
	if got := m.FindElement("./attributes/time/beat-type").Text(); got != "4" {
		t.Errorf("beat-type = %s, want 4", got)
	}
	total := 0
	for _, n := range noteElements(m) {
		total += duration(t, n)
	}
	if total != 4*Divisions {
		t.Errorf("measure length = %d, want %d", total, 4*Divisions)
	}
}

func TestCountableMeter(t *testing.T) {
	tests := []struct {
		num, den uint8
		want     bool
	}{
		{4, 4, true},
		{6, 8, true},
		{7, 32, true},
		{3, 1, true},
		{5, 64, false},
		{3, 3, false},
		{0, 4, false},
		{4, 0, false},
	}
	for _, tt := range tests {
		if got := countableMeter(tt.num, tt.den); got != tt.want {
			t.Errorf("countableMeter(%d, %d) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestParseMIDIInvalid(t *testing.T) {
	if _, err := ParseMIDI([]byte("not really midi")); !errors.Is(err, ErrInvalidMIDI) {
		t.Errorf("err = %v, want ErrInvalidMIDI", err)
	}
}

func TestSplitDuration(t *testing.T) {
	tests := []struct {
		d    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{7, []int{6, 1}},
		{24, []int{24}},
		{40, []int{32, 8}},
		{50, []int{48, 2}},
	}
	for _, tt := range tests {
		if got := splitDuration(tt.d); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitDuration(%d) = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestSpellPitch(t *testing.T) {
	tests := []struct {
		key    uint8
		step   string
		alter  int
		octave int
	}{
		{60, "C", 0, 4},
		{61, "C", 1, 4},
		{21, "A", 0, 0},
		{70, "A", 1, 4},
	}
	for _, tt := range tests {
		step, alter, octave := spellPitch(tt.key)
		if step != tt.step || alter != tt.alter || octave != tt.octave {
			t.Errorf("spellPitch(%d) = %s %d %d", tt.key, step, alter, octave)
		}
	}
}

func TestNativeEngineRoundTrip(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(4*quarter, midi.NoteOff(0, 60))
	tr.Close(0)

	e := NewNativeEngine()
	s, err := e.Parse(context.Background(), buildMIDI(t, tr), FormatMIDI)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := e.Write(context.Background(), s)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	back, err := e.Parse(context.Background(), out, FormatMusicXML)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if len(back.Parts) != 1 {
		t.Fatalf("len(Parts) = %d, want 1", len(back.Parts))
	}
	if got := back.Parts[0].Measures[0].FindElement("./note/type").Text(); got != "whole" {
		t.Errorf("note type = %s, want whole", got)
	}
	if _, err := e.Parse(context.Background(), nil, Format(0)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}
