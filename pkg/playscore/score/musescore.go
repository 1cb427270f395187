package score

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/himanishpuri/playscore/pkg/utils"
)

const (
	DefaultMuseScoreBinary  = "mscore"
	DefaultMuseScoreTimeout = 2 * time.Minute
)

// MuseScoreEngine imports MIDI by running the MuseScore command line
// converter. MusicXML parsing and all writing use the native engine.
type MuseScoreEngine struct {
	Binary  string        // executable name or path, DefaultMuseScoreBinary when empty
	TempDir string        // parent of the per-call scratch directories
	Timeout time.Duration // used when ctx carries no deadline

	native NativeEngine
}

func NewMuseScoreEngine(binary, tempDir string) *MuseScoreEngine {
	return &MuseScoreEngine{Binary: binary, TempDir: tempDir, Timeout: DefaultMuseScoreTimeout}
}

func (e *MuseScoreEngine) Name() string { return "musescore" }

func (e *MuseScoreEngine) binary() string {
	if e.Binary == "" {
		return DefaultMuseScoreBinary
	}
	return e.Binary
}

func (e *MuseScoreEngine) Available() error {
	if _, err := exec.LookPath(e.binary()); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrEngineUnavailable, e.binary(), err)
	}
	return nil
}

func (e *MuseScoreEngine) Parse(ctx context.Context, data []byte, format Format) (*Score, error) {
	if format != FormatMIDI {
		return e.native.Parse(ctx, data, format)
	}
	if err := e.Available(); err != nil {
		return nil, err
	}
	xml, err := e.convertMIDI(ctx, data)
	if err != nil {
		return nil, err
	}
	return ParseMusicXML(xml)
}

func (e *MuseScoreEngine) Write(ctx context.Context, s *Score) ([]byte, error) {
	return e.native.Write(ctx, s)
}

// convertMIDI runs `mscore -o out.musicxml in.mid` inside a scratch
// directory that is removed before returning.
func (e *MuseScoreEngine) convertMIDI(ctx context.Context, data []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := e.Timeout
		if timeout <= 0 {
			timeout = DefaultMuseScoreTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dir, err := utils.NewScratchDir(e.TempDir, "playscore-mscore")
	if err != nil {
		return nil, err
	}
	defer utils.DeleteDir(dir)

	in := filepath.Join(dir, "in.mid")
	out := filepath.Join(dir, "out.musicxml")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing MIDI scratch file: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary(), "-o", out, in)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("mscore failed: %v (%s)", err, output)
	}

	xml, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("mscore produced no output: %w", err)
	}
	return xml, nil
}
