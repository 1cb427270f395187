package playscore

import (
	"fmt"
	"strings"

	"github.com/himanishpuri/playscore/pkg/playscore/score"
)

// Built-in engine names.
const (
	EngineNative    = "native"
	EngineMuseScore = "musescore"
)

// NewEngine builds a built-in engine by name. An empty name selects the
// native engine.
func NewEngine(name, museScoreBinary, tempDir string) (score.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineNative:
		return score.NewNativeEngine(), nil
	case EngineMuseScore, "mscore":
		return score.NewMuseScoreEngine(museScoreBinary, tempDir), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want %s or %s)", name, EngineNative, EngineMuseScore)
	}
}
