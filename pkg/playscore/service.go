// Package playscore converts .playscore archives to MusicXML, one file at a
// time or merged into a single multi-part score.
package playscore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/metrics"
	"github.com/himanishpuri/playscore/pkg/models"
	"github.com/himanishpuri/playscore/pkg/playscore/archive"
	"github.com/himanishpuri/playscore/pkg/playscore/score"
	"github.com/himanishpuri/playscore/pkg/utils"
)

const (
	// OutputExt is the extension given to converted files.
	OutputExt = ".musicxml"
	// MergedOutputName is the default file name of a merged score.
	MergedOutputName = "merged" + OutputExt

	outputPerm = 0o644
)

// playscoreService is the default implementation of the Service interface.
type playscoreService struct {
	engine    score.Engine
	inspector *archive.Inspector
	storage   Storage
	log       Logger
	config    *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Engine == nil {
		engine, err := NewEngine(cfg.EngineName, cfg.MuseScore, cfg.TempDir)
		if err != nil {
			return nil, err
		}
		cfg.Engine = engine
	}
	if cfg.Inspector == nil {
		cfg.Inspector = archive.NewInspector()
	}

	var stor Storage
	var err error
	switch {
	case cfg.Storage != nil:
		stor = cfg.Storage
	case cfg.DBPath != "":
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	default:
		stor = nopStorage{}
	}

	return &playscoreService{
		engine:    cfg.Engine,
		inspector: cfg.Inspector,
		storage:   stor,
		log:       cfg.Logger,
		config:    cfg,
	}, nil
}

// DefaultOutput is the converted file's path next to input.
func DefaultOutput(input string) string {
	return utils.ReplaceExt(input, OutputExt)
}

// DefaultMergeOutput places merged.musicxml in the directory of the first input.
func DefaultMergeOutput(inputs []string) string {
	if len(inputs) == 0 {
		return MergedOutputName
	}
	return filepath.Join(filepath.Dir(inputs[0]), MergedOutputName)
}

func (s *playscoreService) Inspect(path string) archive.Classification {
	c := s.inspector.Inspect(path)
	metrics.ArchiveClassificationsTotal.WithLabelValues(c.Kind.String()).Inc()
	return c
}

func (s *playscoreService) InspectBytes(data []byte) archive.Classification {
	c := s.inspector.InspectBytes(data)
	metrics.ArchiveClassificationsTotal.WithLabelValues(c.Kind.String()).Inc()
	return c
}

func (s *playscoreService) ConvertOne(ctx context.Context, input, output string, overwrite bool) Result {
	start := time.Now()
	res := s.convertOne(ctx, input, output, overwrite)
	s.finish(models.ModeSingle, []string{input}, res, start)
	return res
}

func (s *playscoreService) convertOne(ctx context.Context, input, output string, overwrite bool) Result {
	res := Result{Input: input, Output: output}

	if !utils.IsRegularFile(input) {
		return fail(res, CodeInputNotFound, fmt.Errorf("%s: %w", input, ErrInputNotFound))
	}
	if !overwrite && utils.Exists(output) {
		res.Code = CodeOK
		res.Skipped = true
		return res
	}

	c := s.Inspect(input)
	res.Kind = c.Kind

	var data []byte
	switch c.Kind {
	case archive.KindCorrupt:
		return fail(res, CodeCorruptArchive, fmt.Errorf("%s: %w: %v", input, ErrCorruptArchive, c.Err))
	case archive.KindUnrecognized:
		return fail(res, CodeNoUsablePayload, fmt.Errorf("%s: %w", input, ErrNoUsablePayload))
	case archive.KindMusicXML:
		s.log.Debugf("%s: copying MusicXML entry %s", input, c.Entry)
		data = c.Data
	case archive.KindMIDI:
		s.log.Debugf("%s: converting MIDI entry %s with %s engine", input, c.Entry, s.engine.Name())
		sc, code, err := s.parseMIDI(ctx, c.Data)
		if err != nil {
			return fail(res, code, fmt.Errorf("%s: %w", input, err))
		}
		combined := score.Combine(sc)
		data, err = s.engine.Write(ctx, combined)
		if err != nil {
			return fail(res, CodeMidiConversionFailed, fmt.Errorf("%s: %w: %v", input, ErrMidiConversion, err))
		}
		res.Parts = len(combined.Parts)
	}

	if err := utils.WriteFileAtomic(output, data, outputPerm); err != nil {
		return fail(res, CodeWriteFailed, fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}
	res.Code = CodeOK
	return res
}

// parseMIDI reports CodeEngineUnavailable separately so callers can stop.
func (s *playscoreService) parseMIDI(ctx context.Context, data []byte) (*score.Score, Code, error) {
	if err := s.engine.Available(); err != nil {
		return nil, CodeEngineUnavailable, err
	}
	sc, err := s.engine.Parse(ctx, data, score.FormatMIDI)
	if errors.Is(err, score.ErrEngineUnavailable) {
		return nil, CodeEngineUnavailable, err
	}
	if err != nil {
		return nil, CodeMidiConversionFailed, fmt.Errorf("%w: %v", ErrMidiConversion, err)
	}
	return sc, CodeOK, nil
}

func (s *playscoreService) MergeAll(ctx context.Context, inputs []string, output string, overwrite bool) Result {
	start := time.Now()
	res := s.mergeAll(ctx, inputs, output, overwrite)
	s.finish(models.ModeMerge, inputs, res, start)
	return res
}

func (s *playscoreService) mergeAll(ctx context.Context, inputs []string, output string, overwrite bool) Result {
	res := Result{Output: output}
	if !overwrite && utils.Exists(output) {
		res.Code = CodeOK
		res.Skipped = true
		return res
	}

	var parsed []*score.Score
	for _, input := range inputs {
		src, sc := s.parseSource(ctx, input)
		res.Sources = append(res.Sources, src)
		if src.Code == CodeEngineUnavailable {
			return fail(res, CodeEngineUnavailable, src.Err)
		}
		if src.Code != CodeOK {
			s.log.Warnf("Skipping %s: %v", input, src.Err)
			continue
		}
		s.log.Debugf("Parsed %s (%s, %d parts)", input, src.Kind, src.Parts)
		parsed = append(parsed, sc)
	}

	if len(parsed) == 0 {
		return fail(res, CodeNoParsableScores, fmt.Errorf("%w (%d inputs)", ErrNoParsableScores, len(inputs)))
	}

	combined := score.Combine(parsed...)
	data, err := s.engine.Write(ctx, combined)
	if err != nil {
		return fail(res, CodeWriteFailed, fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}
	if err := utils.WriteFileAtomic(output, data, outputPerm); err != nil {
		return fail(res, CodeWriteFailed, fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}

	res.Code = CodeOK
	res.Parts = len(combined.Parts)
	metrics.MergedParts.Observe(float64(res.Parts))
	return res
}

// parseSource inspects and parses one merge input. The returned score is nil
// unless the outcome is CodeOK.
func (s *playscoreService) parseSource(ctx context.Context, input string) (SourceOutcome, *score.Score) {
	src := SourceOutcome{Input: input}
	if !utils.IsRegularFile(input) {
		src.Code = CodeInputNotFound
		src.Err = fmt.Errorf("%s: %w", input, ErrInputNotFound)
		return src, nil
	}

	c := s.Inspect(input)
	src.Kind = c.Kind

	var (
		sc  *score.Score
		err error
	)
	switch c.Kind {
	case archive.KindCorrupt:
		src.Code = CodeCorruptArchive
		src.Err = fmt.Errorf("%s: %w: %v", input, ErrCorruptArchive, c.Err)
		return src, nil
	case archive.KindUnrecognized:
		src.Code = CodeNoUsablePayload
		src.Err = fmt.Errorf("%s: %w", input, ErrNoUsablePayload)
		return src, nil
	case archive.KindMusicXML:
		sc, err = s.engine.Parse(ctx, c.Data, score.FormatMusicXML)
		if err != nil {
			src.Code = CodeNoUsablePayload
			src.Err = fmt.Errorf("%s: %w: %v", input, ErrNoUsablePayload, err)
			return src, nil
		}
	case archive.KindMIDI:
		var code Code
		sc, code, err = s.parseMIDI(ctx, c.Data)
		if err != nil {
			src.Code = code
			src.Err = fmt.Errorf("%s: %w", input, err)
			return src, nil
		}
	}

	src.Code = CodeOK
	src.Parts = len(sc.Parts)
	return src, sc
}

func (s *playscoreService) ConvertBatch(ctx context.Context, inputs []string, outputOverride string, overwrite bool) BatchResult {
	var batch BatchResult
	for _, input := range inputs {
		output := DefaultOutput(input)
		if len(inputs) == 1 && outputOverride != "" {
			output = outputOverride
		}
		res := s.ConvertOne(ctx, input, output, overwrite)
		batch.Results = append(batch.Results, res)
		if res.Code == CodeEngineUnavailable {
			s.log.Errorf("Stopping batch: %v", res.Err)
			break
		}
	}
	return batch
}

func (s *playscoreService) History(limit int) ([]models.Conversion, error) {
	return s.storage.ListConversions(limit)
}

func (s *playscoreService) GetConversion(id string) (*models.Conversion, error) {
	return s.storage.GetConversion(id)
}

func (s *playscoreService) DeleteConversion(id string) error {
	return s.storage.DeleteConversion(id)
}

func (s *playscoreService) Close() error {
	return s.storage.Close()
}

func fail(res Result, code Code, err error) Result {
	res.Code = code
	res.Err = err
	return res
}

// finish logs, measures and records a completed call. Skipped calls are
// logged only.
func (s *playscoreService) finish(mode string, inputs []string, res Result, start time.Time) {
	elapsed := time.Since(start)

	switch {
	case res.Skipped:
		s.log.Infof("Output %s exists, skipping (use overwrite to replace)", res.Output)
		return
	case res.OK():
		s.log.Infof("Wrote %s (%s, %s)", res.Output, mode, elapsed.Round(time.Millisecond))
	default:
		s.log.Errorf("%s conversion failed [%s]: %v", mode, res.Code, res.Err)
	}

	metrics.ObserveConversion(mode, string(res.Code), elapsed)

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = filepath.Base(in)
	}
	rec := models.Conversion{
		Mode:       mode,
		Inputs:     names,
		Code:       string(res.Code),
		Parts:      res.Parts,
		DurationMs: elapsed.Milliseconds(),
	}
	if res.OK() {
		rec.Output = filepath.Base(res.Output)
	}
	if mode == models.ModeSingle && res.Code != CodeInputNotFound {
		rec.Kind = res.Kind.String()
	}
	if _, err := s.storage.RecordConversion(rec); err != nil {
		s.log.Warnf("Failed to record conversion history: %v", err)
	}
}
