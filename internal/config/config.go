// Package config provides the configuration schema, loader, and hot-reload
// watcher for the bacakata server.
package config

import "time"

// LogLevel controls log verbosity for the bacakata server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure for bacakata.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
//
// Every leaf can be overridden by an environment variable named
// BACAKATA_<SECTION>_<FIELD>, for example BACAKATA_NARRATION_COOLDOWN=1500ms.
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"BACAKATA_SERVER_"`
	Dictionary DictionaryConfig `yaml:"dictionary" envPrefix:"BACAKATA_DICTIONARY_"`
	Correction CorrectionConfig `yaml:"correction" envPrefix:"BACAKATA_CORRECTION_"`
	Narration  NarrationConfig  `yaml:"narration" envPrefix:"BACAKATA_NARRATION_"`
	Input      InputConfig      `yaml:"input" envPrefix:"BACAKATA_INPUT_"`
}

// ServerConfig holds network and logging settings for the bacakata server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// Empty disables the HTTP server; only the line feed runs.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format" env:"LOG_FORMAT"`

	// LogFile, when set, additionally writes logs to a size-rotated file.
	LogFile string `yaml:"log_file" env:"LOG_FILE"`

	// LogMaxSizeMB is the size at which LogFile is rotated.
	LogMaxSizeMB int `yaml:"log_max_size_mb" env:"LOG_MAX_SIZE_MB"`

	// AllowedOrigins lists host patterns accepted for cross-origin WebSocket
	// connections.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`

	// TLS configures TLS for the server. When empty, the server runs plain HTTP.
	TLS TLSConfig `yaml:"tls" envPrefix:"TLS_"`
}

// TLSConfig holds paths to TLS certificate and key files.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file" env:"KEY_FILE"`
}

// Enabled reports whether any TLS file is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// DictionaryConfig locates the word list.
type DictionaryConfig struct {
	// Path is the dictionary file, one word per line.
	Path string `yaml:"path" env:"PATH"`
}

// CorrectionConfig tunes word and fragment correction.
type CorrectionConfig struct {
	// MinWordLength is the rune length at or below which words bypass
	// correction.
	MinWordLength int `yaml:"min_word_length" env:"MIN_WORD_LENGTH"`

	// Threshold is the similarity (0-100) a dictionary word must strictly
	// exceed to replace a recognized word.
	Threshold int `yaml:"threshold" env:"THRESHOLD"`

	// MaxWords caps the tokens corrected per fragment.
	MaxWords int `yaml:"max_words" env:"MAX_WORDS"`

	// Synchronized makes correction caches safe for concurrent use.
	Synchronized bool `yaml:"synchronized" env:"SYNCHRONIZED"`
}

// NarrationConfig tunes the narration gate and the speech sink.
type NarrationConfig struct {
	// Cooldown is the minimum time between two narrations. Zero disables it.
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`

	// DuplicateThreshold is the similarity (0-100) at or above which a
	// candidate repeats the last narration.
	DuplicateThreshold int `yaml:"duplicate_threshold" env:"DUPLICATE_THRESHOLD"`

	// WordsPerMinute is the speaking rate used to estimate utterance length.
	WordsPerMinute int `yaml:"words_per_minute" env:"WORDS_PER_MINUTE"`

	// Language is the BCP 47 tag of the narration voice.
	Language string `yaml:"language" env:"LANGUAGE"`
}

// InputConfig configures the line feed.
type InputConfig struct {
	// Path is a file of recognizer fragments, one per line. "-" reads stdin.
	// Empty disables the line feed.
	Path string `yaml:"path" env:"PATH"`

	// FrameInterval paces the line feed like a camera frame rate.
	FrameInterval time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
}

// Defaults returns a Config holding every default value. Loaders decode on
// top of it so that omitted keys keep their defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8080",
			LogLevel:     LogInfo,
			LogFormat:    LogFormatText,
			LogMaxSizeMB: 50,
		},
		Correction: CorrectionConfig{
			MinWordLength: 3,
			Threshold:     80,
			MaxWords:      50,
		},
		Narration: NarrationConfig{
			Cooldown:           2 * time.Second,
			DuplicateThreshold: 85,
			WordsPerMinute:     150,
			Language:           "id-ID",
		},
	}
}
