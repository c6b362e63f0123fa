package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/bacakata/internal/session"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults], applies
// the BACAKATA_* environment overlay, and validates the result. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped; with no arguments ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("config: loaded environment file", "path", p)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.LogFile != "" && cfg.Server.LogMaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("server.log_max_size_mb must be positive when server.log_file is set, got %d", cfg.Server.LogMaxSizeMB))
	}
	if tls := cfg.Server.TLS; tls.Enabled() && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Dictionary
	if cfg.Dictionary.Path == "" {
		slog.Warn("dictionary.path is empty; fragments will pass through uncorrected")
	}

	// Correction
	if cfg.Correction.MinWordLength < 0 {
		errs = append(errs, fmt.Errorf("correction.min_word_length must not be negative, got %d", cfg.Correction.MinWordLength))
	}
	if cfg.Correction.Threshold < 0 || cfg.Correction.Threshold > 100 {
		errs = append(errs, fmt.Errorf("correction.threshold %d is out of range [0, 100]", cfg.Correction.Threshold))
	}
	if cfg.Correction.MaxWords <= 0 {
		errs = append(errs, fmt.Errorf("correction.max_words must be positive, got %d", cfg.Correction.MaxWords))
	}

	// Narration
	if cfg.Narration.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("narration.cooldown must not be negative, got %s", cfg.Narration.Cooldown))
	}
	if cfg.Narration.DuplicateThreshold < 0 || cfg.Narration.DuplicateThreshold > 100 {
		errs = append(errs, fmt.Errorf("narration.duplicate_threshold %d is out of range [0, 100]", cfg.Narration.DuplicateThreshold))
	}
	if cfg.Narration.WordsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("narration.words_per_minute must be positive, got %d", cfg.Narration.WordsPerMinute))
	}

	// Input
	if cfg.Input.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("input.frame_interval must not be negative, got %s", cfg.Input.FrameInterval))
	}
	if cfg.Input.Path == "" && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("no fragment source: set input.path or server.listen_addr"))
	}

	return errors.Join(errs...)
}

// SessionConfig returns the engine tuning described by cfg.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		MinWordLength:      c.Correction.MinWordLength,
		Threshold:          c.Correction.Threshold,
		MaxWords:           c.Correction.MaxWords,
		Cooldown:           c.Narration.Cooldown,
		DuplicateThreshold: c.Narration.DuplicateThreshold,
		Synchronized:       c.Correction.Synchronized,
	}
}
