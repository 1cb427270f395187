package playscore

import (
	"net/http"

	"github.com/himanishpuri/playscore/pkg/playscore/archive"
)

// Code classifies the outcome of a conversion.
type Code string

const (
	CodeOK                   Code = "ok"
	CodeInputNotFound        Code = "input_not_found"
	CodeCorruptArchive       Code = "corrupt_archive"
	CodeNoUsablePayload      Code = "no_usable_payload"
	CodeMidiConversionFailed Code = "midi_conversion_failed"
	CodeNoParsableScores     Code = "no_parsable_scores"
	CodeWriteFailed          Code = "write_failed"
	CodeEngineUnavailable    Code = "engine_unavailable"
)

// ExitCode is the process exit status a command line caller should use.
func (c Code) ExitCode() int {
	switch c {
	case CodeOK:
		return 0
	case CodeInputNotFound, CodeCorruptArchive:
		return 2
	case CodeMidiConversionFailed, CodeEngineUnavailable:
		return 3
	case CodeNoUsablePayload, CodeNoParsableScores:
		return 4
	default:
		return 5
	}
}

// HTTPStatus maps the code onto a response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeInputNotFound:
		return http.StatusBadRequest
	case CodeCorruptArchive, CodeNoUsablePayload, CodeMidiConversionFailed, CodeNoParsableScores:
		return http.StatusUnprocessableEntity
	case CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is a user-facing description that never names a file.
func (c Code) Message() string {
	switch c {
	case CodeOK:
		return "conversion succeeded"
	case CodeInputNotFound:
		return "input file not found"
	case CodeCorruptArchive:
		return "input is not a valid .playscore archive"
	case CodeNoUsablePayload:
		return "archive contains no MusicXML or MIDI score"
	case CodeMidiConversionFailed:
		return "the embedded MIDI score could not be converted"
	case CodeNoParsableScores:
		return "none of the inputs contained a parsable score"
	case CodeEngineUnavailable:
		return "the score conversion engine is not available"
	default:
		return "the output could not be written"
	}
}

// Result is the outcome of one ConvertOne or MergeAll call.
type Result struct {
	Code    Code
	Input   string // single conversions only
	Output  string
	Skipped bool // output existed and overwrite was off; nothing was written
	Kind    archive.Kind
	Parts   int // parts in the written score, 0 for a verbatim copy
	Sources []SourceOutcome
	Err     error
}

// SourceOutcome reports what happened to one input of a merge.
type SourceOutcome struct {
	Input string
	Code  Code
	Kind  archive.Kind
	Parts int
	Err   error
}

func (r Result) OK() bool { return r.Code == CodeOK }

func (r Result) ExitCode() int { return r.Code.ExitCode() }

// BatchResult collects the per-input results of ConvertBatch.
type BatchResult struct {
	Results []Result
}

// ExitCode is the worst exit code across all inputs.
func (b BatchResult) ExitCode() int {
	worst := 0
	for _, r := range b.Results {
		if c := r.ExitCode(); c > worst {
			worst = c
		}
	}
	return worst
}

// Succeeded counts the results with CodeOK.
func (b BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}
