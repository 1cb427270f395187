package playscore

import (
	"errors"

	"github.com/himanishpuri/playscore/pkg/playscore/score"
)

var (
	ErrInputNotFound    = errors.New("input file not found")
	ErrCorruptArchive   = errors.New("archive is not a valid ZIP file")
	ErrNoUsablePayload  = errors.New("archive contains no MusicXML or MIDI document")
	ErrMidiConversion   = errors.New("MIDI conversion failed")
	ErrNoParsableScores = errors.New("no input could be parsed")
	ErrWriteFailed      = errors.New("writing output failed")

	// ErrEngineUnavailable is re-exported so callers need not import score.
	ErrEngineUnavailable = score.ErrEngineUnavailable
)
