package models

import "time"

// Conversion modes.
const (
	ModeSingle = "single"
	ModeMerge  = "merge"
)

// Conversion is one recorded converter or merge run.
type Conversion struct {
	ID         string    `json:"id"`          // UUID
	Mode       string    `json:"mode"`        // ModeSingle or ModeMerge
	Inputs     []string  `json:"inputs"`      // input file names, in processing order
	Output     string    `json:"output"`      // output file name
	Code       string    `json:"code"`        // result code
	Kind       string    `json:"kind"`        // payload kind, single conversions only
	Parts      int       `json:"parts"`       // parts in the written score, 0 for passthrough
	DurationMs int64     `json:"duration_ms"` // wall time of the run
	CreatedAt  time.Time `json:"created_at"`
}
