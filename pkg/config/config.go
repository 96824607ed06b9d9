// Package config loads the carta configuration file. Values absent from the
// file keep their defaults; command-line flags are applied on top by the
// caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/fetch"
	"github.com/coolbeans/carta/pkg/validate"
)

// Config is the complete run configuration.
type Config struct {
	Fetch  fetch.Config              `yaml:"fetch"`
	Output Output                    `yaml:"output"`
	Log    Log                       `yaml:"log"`
	Gates  validate.ValidationConfig `yaml:"gates"`
	Watch  Watch                     `yaml:"watch"`

	// Rules is a classifier rule file replacing the built-in rules.
	Rules string `yaml:"rules"`

	// ProgressEvery is the element interval of build progress logs.
	ProgressEvery int `yaml:"progress_every"`
}

// Output names where results are written.
type Output struct {
	Path     string `yaml:"path"`
	Format   string `yaml:"format"`
	Markdown string `yaml:"markdown"`
	HTML     string `yaml:"html"`
	Archive  string `yaml:"archive"`
}

// Watch configures the page change monitor.
type Watch struct {
	// Interval is the time between checks of the page.
	Interval time.Duration `yaml:"interval"`
}

// Log configures the root logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Fetch: fetch.DefaultConfig(),
		Output: Output{
			Path:   "output/constituicao.json",
			Format: string(archive.FormatJSON),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Gates: validate.ValidationConfig{
			Thresholds: map[string]float64{},
		},
		Watch:         Watch{Interval: 24 * time.Hour},
		ProgressEvery: 50,
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if cfg.Gates.Thresholds == nil {
		cfg.Gates.Thresholds = map[string]float64{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no run can use.
func (c *Config) Validate() error {
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if _, err := archive.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q (want text or json)", c.Log.Format)
	}
	for key, threshold := range c.Gates.Thresholds {
		if !strings.Contains(key, ".") {
			return fmt.Errorf("gates: threshold key %q must be gate.metric", key)
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("gates: threshold %s = %g outside [0, 1]", key, threshold)
		}
	}
	if c.Watch.Interval < time.Minute {
		return fmt.Errorf("watch: interval must be at least 1m, got %s", c.Watch.Interval)
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every cannot be negative, got %d", c.ProgressEvery)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q (want debug, info, warn or error)", name)
	}
}

// NewLogger builds the root logger writing to w.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
}
