package playscore

import (
	"github.com/himanishpuri/playscore/pkg/playscore/archive"
	"github.com/himanishpuri/playscore/pkg/playscore/score"
)

type Config struct {
	DBPath     string // history database; empty disables history
	TempDir    string // parent of engine scratch directories
	EngineName string // EngineNative or EngineMuseScore, used when Engine is nil
	MuseScore  string // mscore binary for EngineMuseScore
	Engine     score.Engine
	Inspector  *archive.Inspector
	Logger     Logger
	Storage    Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithEngineName selects a built-in engine by name.
func WithEngineName(name string) Option {
	return func(c *Config) {
		c.EngineName = name
	}
}

func WithMuseScoreBinary(path string) Option {
	return func(c *Config) {
		c.MuseScore = path
	}
}

func WithEngine(engine score.Engine) Option {
	return func(c *Config) {
		c.Engine = engine
	}
}

func WithInspector(in *archive.Inspector) Option {
	return func(c *Config) {
		c.Inspector = in
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		EngineName: EngineNative,
	}
}
