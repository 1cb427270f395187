// Package config loads playscore settings from an optional YAML file and
// PLAYSCORE_* environment variables. Command-line flags are applied on top by
// the binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/playscore/pkg/logger"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "playscore.yaml"

const (
	defaultPort        = "8080"
	defaultEngine      = "native"
	defaultMuseScore   = "mscore"
	defaultMaxUploadMB = 100
)

// Config models playscore.yaml.
type Config struct {
	Port        string   `yaml:"port"`
	DBPath      string   `yaml:"db_path,omitempty"`
	TempDir     string   `yaml:"temp_dir,omitempty"`
	Engine      string   `yaml:"engine"`
	MuseScore   string   `yaml:"musescore"`
	Origins     []string `yaml:"allowed_origins,omitempty"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
	LogLevel    string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Port:        defaultPort,
		Engine:      defaultEngine,
		MuseScore:   defaultMuseScore,
		MaxUploadMB: defaultMaxUploadMB,
		LogLevel:    "INFO",
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// then applies environment overrides. An explicitly named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PLAYSCORE_PORT", &c.Port)
	str("PLAYSCORE_DB_PATH", &c.DBPath)
	str("PLAYSCORE_TEMP_DIR", &c.TempDir)
	str("PLAYSCORE_ENGINE", &c.Engine)
	str("PLAYSCORE_MSCORE", &c.MuseScore)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("PLAYSCORE_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Origins = SplitList(v)
	}
	if v, ok := lookup("PLAYSCORE_MAX_UPLOAD_MB"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: PLAYSCORE_MAX_UPLOAD_MB: %w", err)
		}
		c.MaxUploadMB = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Engine == "" {
		c.Engine = defaultEngine
	}
	if c.MuseScore == "" {
		c.MuseScore = defaultMuseScore
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) validate() error {
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port %q is not a number", c.Port)
	}
	if c.LogLevel != "" {
		if _, ok := logger.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("unknown log level %q", c.LogLevel)
		}
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Level returns the configured log level, INFO when unset.
func (c Config) Level() logger.LogLevel {
	lvl, _ := logger.ParseLevel(c.LogLevel)
	return lvl
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
