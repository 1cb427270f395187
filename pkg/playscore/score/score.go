// Package score holds the in-memory score model and the engines that parse
// MusicXML or MIDI into it and serialize it back to MusicXML.
package score

import (
	"context"
	"errors"

	"github.com/beevik/etree"
)

// Format identifies the encoding of a score byte stream.
type Format int

const (
	FormatMusicXML Format = iota + 1
	FormatMIDI
)

func (f Format) String() string {
	switch f {
	case FormatMusicXML:
		return "musicxml"
	case FormatMIDI:
		return "midi"
	default:
		return "unknown"
	}
}

var (
	// ErrEngineUnavailable means the conversion backend is not installed.
	ErrEngineUnavailable = errors.New("score engine unavailable")
	ErrUnsupportedFormat = errors.New("unsupported score format")
	ErrNotMusicXML       = errors.New("document is not MusicXML")
	ErrInvalidMIDI       = errors.New("invalid MIDI data")
	ErrEmptyScore        = errors.New("score has no parts")
)

// Engine is the parse/write capability the converter and merge engine rely on.
type Engine interface {
	Name() string
	// Available reports ErrEngineUnavailable (wrapped) when the backend
	// cannot run on this machine.
	Available() error
	Parse(ctx context.Context, data []byte, format Format) (*Score, error)
	Write(ctx context.Context, s *Score) ([]byte, error)
}

// Score is a parsed musical document.
type Score struct {
	Title string
	Parts []*Part
	// Loose holds measures of a document without explicit part structure.
	Loose []*etree.Element
}

// Part is one instrumental or vocal line.
type Part struct {
	ID       string         // id in the source document
	Name     string         // display name
	Header   *etree.Element // source <score-part>, nil when built from MIDI without one
	Measures []*etree.Element
}

// ImplicitPart wraps a score that declares no parts as a single part.
func (s *Score) ImplicitPart() *Part {
	name := s.Title
	if name == "" {
		name = "Part"
	}
	return &Part{Name: name, Measures: s.Loose}
}

// Combine appends, in order, every part of each score, or the score's
// implicit part when it has none. Parts are neither reordered nor
// deduplicated. A nil score is skipped.
func Combine(scores ...*Score) *Score {
	combined := &Score{}
	var sources []*Score
	for _, s := range scores {
		if s == nil {
			continue
		}
		sources = append(sources, s)
		if len(s.Parts) > 0 {
			combined.Parts = append(combined.Parts, s.Parts...)
			continue
		}
		combined.Parts = append(combined.Parts, s.ImplicitPart())
	}
	// a merged document keeps a title only when it has a single source
	if len(sources) == 1 {
		combined.Title = sources[0].Title
	}
	return combined
}
