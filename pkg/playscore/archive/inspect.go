// Package archive classifies the payload of a .playscore container.
//
// A .playscore file is a ZIP archive. Its score is either an embedded MusicXML
// document or a MIDI file; the layout is not fixed, so the inspector tries
// well-known entry names first and then falls back to scanning every XML entry.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	// DocXML is the conventional MusicXML entry name.
	DocXML = "doc.xml"
	// DocMIDI is the conventional MIDI entry name.
	DocMIDI = "doc.mid"

	// DefaultMaxEntryBytes caps how much of a single entry is read into memory.
	DefaultMaxEntryBytes int64 = 256 << 20
)

// Kind is the classification outcome of one archive.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindMusicXML
	KindMIDI
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindMusicXML:
		return "musicxml"
	case KindMIDI:
		return "midi"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unrecognized"
	}
}

// ErrEntryTooLarge is reported when an entry exceeds Inspector.MaxEntryBytes.
var ErrEntryTooLarge = errors.New("archive entry exceeds size limit")

// Classification describes what Inspect found in an archive.
type Classification struct {
	Kind    Kind
	Rule    string   // name of the detection rule that matched
	Entry   string   // entry the payload was read from
	Data    []byte   // payload bytes for KindMusicXML and KindMIDI
	Entries []string // every entry name, in archive order
	Err     error    // why the archive is KindCorrupt
}

// Inspector opens archives and applies the detection rules.
type Inspector struct {
	MaxEntryBytes int64
}

// NewInspector returns an Inspector with default limits.
func NewInspector() *Inspector {
	return &Inspector{MaxEntryBytes: DefaultMaxEntryBytes}
}

// Inspect classifies the archive at path using the default inspector.
func Inspect(path string) Classification {
	return NewInspector().Inspect(path)
}

// Inspect opens path as a ZIP archive and returns the first detection rule
// match. Invalid ZIP data yields KindCorrupt rather than an error.
func (in *Inspector) Inspect(path string) Classification {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return Classification{Kind: KindCorrupt, Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer rc.Close()
	return in.classify(&rc.Reader)
}

// InspectBytes classifies an archive already held in memory.
func (in *Inspector) InspectBytes(data []byte) Classification {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Classification{Kind: KindCorrupt, Err: fmt.Errorf("reading archive: %w", err)}
	}
	return in.classify(zr)
}

func (in *Inspector) classify(zr *zip.Reader) Classification {
	a := &openArchive{zr: zr, limit: in.MaxEntryBytes}
	entries := a.names()

	for _, r := range detectionRules {
		c, ok, err := r.detect(a)
		if err != nil {
			return Classification{Kind: KindCorrupt, Entries: entries, Err: err}
		}
		if ok {
			c.Rule = r.name
			c.Entries = entries
			return c
		}
	}
	return Classification{Kind: KindUnrecognized, Entries: entries}
}

// rule is one step of the detection order. detect reports a match, or an
// error when the archive turns out to be unreadable.
type rule struct {
	name   string
	detect func(a *openArchive) (Classification, bool, error)
}

// detectionRules is evaluated in order; the first match wins.
var detectionRules = []rule{
	{name: "doc.xml", detect: detectDocXML},
	{name: "doc.mid", detect: detectDocMIDI},
	{name: "*.xml", detect: detectAnyXML},
}

func detectDocXML(a *openArchive) (Classification, bool, error) {
	f := a.lookup(DocXML)
	if f == nil {
		return Classification{}, false, nil
	}
	data, err := a.read(f)
	if err != nil {
		return Classification{}, false, err
	}
	if !IsMusicXML(data) {
		return Classification{}, false, nil
	}
	return Classification{Kind: KindMusicXML, Entry: f.Name, Data: data}, true, nil
}

func detectDocMIDI(a *openArchive) (Classification, bool, error) {
	f := a.lookup(DocMIDI)
	if f == nil {
		return Classification{}, false, nil
	}
	data, err := a.read(f)
	if err != nil {
		return Classification{}, false, err
	}
	return Classification{Kind: KindMIDI, Entry: f.Name, Data: data}, true, nil
}

// detectAnyXML scans the remaining entries in archive order. doc.xml was
// already examined by the first rule and is skipped.
func detectAnyXML(a *openArchive) (Classification, bool, error) {
	for _, f := range a.zr.File {
		if f.FileInfo().IsDir() || f.Name == DocXML {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		data, err := a.read(f)
		if err != nil {
			return Classification{}, false, err
		}
		if IsMusicXML(data) {
			return Classification{Kind: KindMusicXML, Entry: f.Name, Data: data}, true, nil
		}
	}
	return Classification{}, false, nil
}

type openArchive struct {
	zr    *zip.Reader
	limit int64
}

func (a *openArchive) names() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// lookup returns the first entry with exactly the given name.
func (a *openArchive) lookup(name string) *zip.File {
	for _, f := range a.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (a *openArchive) read(f *zip.File) ([]byte, error) {
	if a.limit > 0 && f.UncompressedSize64 > uint64(a.limit) {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrEntryTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	r := io.Reader(rc)
	if a.limit > 0 {
		r = io.LimitReader(rc, a.limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
	}
	if a.limit > 0 && int64(len(data)) > a.limit {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrEntryTooLarge)
	}
	return data, nil
}
