package score

import (
	"context"
	"fmt"
)

// NativeEngine parses and writes scores in-process.
type NativeEngine struct{}

// NewNativeEngine returns the in-process engine.
func NewNativeEngine() *NativeEngine {
	return &NativeEngine{}
}

func (NativeEngine) Name() string { return "native" }

// Available always succeeds; the native engine has no external requirements.
func (NativeEngine) Available() error { return nil }

func (NativeEngine) Parse(ctx context.Context, data []byte, format Format) (*Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch format {
	case FormatMusicXML:
		return ParseMusicXML(data)
	case FormatMIDI:
		return ParseMIDI(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (NativeEngine) Write(ctx context.Context, s *Score) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return WriteMusicXML(s)
}
