package score

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const percussionChannel = 9

type midiNote struct {
	start, end int64 // absolute ticks
	key        uint8
}

// midiLine collects the notes of one channel within one track.
type midiLine struct {
	track   int
	channel uint8
	name    string
	program int
	notes   []midiNote
}

type lineKey struct {
	track   int
	channel uint8
}

// midiFile is the part of a standard MIDI file the importer uses.
type midiFile struct {
	resolution int64
	beats      int
	beatType   int
	tempo      float64
	title      string
	lines      []*midiLine
}

// ParseMIDI imports a standard MIDI file. Each channel of each track that
// plays notes becomes one part; timing is quantized to Divisions per quarter.
func ParseMIDI(data []byte) (*Score, error) {
	mf, err := readMIDI(data)
	if err != nil {
		return nil, err
	}

	s := &Score{Title: mf.title}
	for i, line := range mf.lines {
		id := partID(i)
		p := &Part{
			ID:     id,
			Name:   line.partName(),
			Header: line.header(id),
		}
		tempo := 0.0
		if i == 0 {
			tempo = mf.tempo
		}
		p.Measures = line.measures(mf, tempo)
		s.Parts = append(s.Parts, p)
	}
	return s, nil
}

func readMIDI(data []byte) (*midiFile, error) {
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMIDI, err)
	}
	ticks, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return nil, fmt.Errorf("%w: only metric time formats are supported", ErrInvalidMIDI)
	}

	mf := &midiFile{resolution: int64(ticks.Resolution())}
	lines := make(map[lineKey]*midiLine)
	meterSeen := false

	for ti, track := range sm.Tracks {
		var (
			abs       int64
			trackName string
			programs  = make(map[uint8]int)
			pending   = make(map[[2]uint8][]int64)
			hasNotes  bool
		)
		line := func(ch uint8) *midiLine {
			k := lineKey{ti, ch}
			if l, ok := lines[k]; ok {
				return l
			}
			l := &midiLine{track: ti, channel: ch, program: -1}
			lines[k] = l
			return l
		}
		noteOff := func(ch, key uint8) {
			k := [2]uint8{ch, key}
			starts := pending[k]
			if len(starts) == 0 {
				return
			}
			pending[k] = starts[1:]
			l := line(ch)
			l.notes = append(l.notes, midiNote{start: starts[0], end: abs, key: key})
		}

		for _, ev := range track {
			abs += int64(ev.Delta)

			var (
				text        string
				bpm         float64
				num, den    uint8
				ch, key, vl uint8
				prog        uint8
			)
			msg := midi.Message(ev.Message)
			switch {
			case ev.Message.GetMetaTrackName(&text):
				if trackName == "" {
					trackName = strings.TrimSpace(text)
				}
			case ev.Message.GetMetaTempo(&bpm):
				if mf.tempo == 0 {
					mf.tempo = bpm
				}
			case ev.Message.GetMetaMeter(&num, &den):
				if !meterSeen && countableMeter(num, den) {
					mf.beats, mf.beatType = int(num), int(den)
					meterSeen = true
				}
			case msg.GetNoteOn(&ch, &key, &vl):
				if vl == 0 {
					noteOff(ch, key)
					continue
				}
				hasNotes = true
				k := [2]uint8{ch, key}
				pending[k] = append(pending[k], abs)
			case msg.GetNoteOff(&ch, &key, &vl):
				noteOff(ch, key)
			case msg.GetProgramChange(&ch, &prog):
				if _, ok := programs[ch]; !ok {
					programs[ch] = int(prog)
				}
			}
		}

		// notes still sounding at the end of the track stop there
		for k, starts := range pending {
			for _, start := range starts {
				l := line(k[0])
				l.notes = append(l.notes, midiNote{start: start, end: abs, key: k[1]})
			}
		}

		if ti == 0 && !hasNotes && trackName != "" {
			mf.title = trackName
		}
		for k, l := range lines {
			if k.track != ti {
				continue
			}
			l.name = trackName
			if p, ok := programs[k.channel]; ok {
				l.program = p
			}
		}
	}

	if !meterSeen {
		mf.beats, mf.beatType = 4, 4
	}
	for _, l := range lines {
		if len(l.notes) == 0 {
			continue
		}
		sort.SliceStable(l.notes, func(i, j int) bool {
			if l.notes[i].start != l.notes[j].start {
				return l.notes[i].start < l.notes[j].start
			}
			return l.notes[i].key < l.notes[j].key
		})
		mf.lines = append(mf.lines, l)
	}
	sort.Slice(mf.lines, func(i, j int) bool {
		if mf.lines[i].track != mf.lines[j].track {
			return mf.lines[i].track < mf.lines[j].track
		}
		return mf.lines[i].channel < mf.lines[j].channel
	})
	return mf, nil
}

func (l *midiLine) partName() string {
	switch {
	case l.name != "":
		return l.name
	case l.channel == percussionChannel:
		return "Percussion"
	default:
		return gmFamily(l.program)
	}
}

func (l *midiLine) header(id string) *etree.Element {
	name := l.partName()
	sp := etree.NewElement("score-part")
	sp.CreateAttr("id", id)
	sp.CreateElement("part-name").SetText(name)

	inst := sp.CreateElement("score-instrument")
	inst.CreateAttr("id", id+"-I1")
	inst.CreateElement("instrument-name").SetText(name)

	mi := sp.CreateElement("midi-instrument")
	mi.CreateAttr("id", id+"-I1")
	mi.CreateElement("midi-channel").SetText(fmt.Sprint(int(l.channel) + 1))
	if l.program >= 0 {
		mi.CreateElement("midi-program").SetText(fmt.Sprint(l.program + 1))
	}
	return sp
}

func (l *midiLine) clef() clef {
	if l.channel == percussionChannel {
		return percussionClef
	}
	sum := 0
	for _, n := range l.notes {
		sum += int(n.key)
	}
	if sum < 60*len(l.notes) {
		return bassClef
	}
	return trebleClef
}

// event is a chord (one or more keys) or, with no keys, a rest.
type event struct {
	start, dur int
	keys       []uint8
}

// events quantizes the line and flattens it to a gapless sequence: notes
// sharing an onset form a chord that lasts until its longest member ends or
// the next onset, whichever is first; gaps become rests.
func (l *midiLine) events(resolution int64) []event {
	q := func(t int64) int {
		return int((t*Divisions + resolution/2) / resolution)
	}

	type onset struct {
		start, end int
		keys       []uint8
	}
	var onsets []*onset
	for _, n := range l.notes {
		start, end := q(n.start), q(n.end)
		if end <= start {
			end = start + 1
		}
		if last := len(onsets) - 1; last >= 0 && onsets[last].start == start {
			o := onsets[last]
			if !containsKey(o.keys, n.key) {
				o.keys = append(o.keys, n.key)
			}
			if end > o.end {
				o.end = end
			}
			continue
		}
		onsets = append(onsets, &onset{start: start, end: end, keys: []uint8{n.key}})
	}

	var out []event
	cursor := 0
	for i, o := range onsets {
		end := o.end
		if i+1 < len(onsets) && onsets[i+1].start < end {
			end = onsets[i+1].start
		}
		if o.start > cursor {
			out = append(out, event{start: cursor, dur: o.start - cursor})
		}
		out = append(out, event{start: o.start, dur: end - o.start, keys: o.keys})
		cursor = end
	}
	return out
}

func containsKey(keys []uint8, k uint8) bool {
	for _, v := range keys {
		if v == k {
			return true
		}
	}
	return false
}

// countableMeter reports whether a bar of num/den is a whole number of
// divisions: den must be a power of two no shorter than a 32nd.
func countableMeter(num, den uint8) bool {
	return num > 0 && den > 0 && int(den) <= 4*Divisions && den&(den-1) == 0
}

// measures lays the line's events out in bars, splitting events at barlines
// and into writable durations joined by ties.
func (l *midiLine) measures(mf *midiFile, tempo float64) []*etree.Element {
	if !countableMeter(uint8(mf.beats), uint8(mf.beatType)) {
		mf.beats, mf.beatType = 4, 4
	}
	measureLen := mf.beats * 4 * Divisions / mf.beatType

	events := l.events(mf.resolution)
	total := 0
	if n := len(events); n > 0 {
		total = events[n-1].start + events[n-1].dur
	}
	count := (total + measureLen - 1) / measureLen
	if count == 0 {
		count = 1
	}
	if pad := count*measureLen - total; pad > 0 {
		events = append(events, event{start: total, dur: pad})
	}

	unpitched := l.channel == percussionChannel
	measures := make([]*etree.Element, count)
	for i := range measures {
		measures[i] = newMeasure(i + 1)
	}
	addAttributes(measures[0], mf.beats, mf.beatType, l.clef())
	if tempo > 0 {
		addTempo(measures[0], tempo)
	}

	for _, ev := range events {
		pos, remaining := ev.start, ev.dur
		for remaining > 0 {
			bar := pos / measureLen
			inBar := measureLen - pos%measureLen
			seg := remaining
			if seg > inBar {
				seg = inBar
			}
			m := measures[bar]

			if len(ev.keys) == 0 {
				if seg == measureLen {
					addRest(m, seg, true)
				} else {
					for _, d := range splitDuration(seg) {
						addRest(m, d, false)
					}
				}
			} else {
				pieces := splitDuration(seg)
				for pi, d := range pieces {
					t := tie{
						stop:  pos > ev.start || pi > 0,
						start: pos+seg < ev.start+ev.dur || pi < len(pieces)-1,
					}
					for ki, key := range ev.keys {
						addNote(m, key, d, ki > 0, unpitched, t)
					}
				}
			}
			pos += seg
			remaining -= seg
		}
	}
	return measures
}
