// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by Load.
const EnvVar = "SQLBRIDGE_CONFIG"

// Config is the sqlbridge configuration file.
type Config struct {
	// Database configures the connections the CLI opens.
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Logging configures the CLI logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// KV configures value storage for the kv commands.
	KV KVConfig `yaml:"kv" json:"kv"`
}

// DatabaseConfig configures the writer client and reader pool.
type DatabaseConfig struct {
	// Path is the database file. Supports ${VAR} and ${VAR:-default}.
	// Default: ${SQLBRIDGE_HOME:-.}/sqlbridge.db
	Path string `yaml:"path" json:"path"`

	// Connections is the reader pool size. Zero means one per CPU.
	Connections int `yaml:"connections" json:"connections"`

	// QueueDepth bounds each worker's command queue. Zero means the
	// library default.
	QueueDepth int `yaml:"queue_depth" json:"queue_depth"`

	// ReadOnlyPool opens pool members read-only. Default: true.
	ReadOnlyPool bool `yaml:"read_only_pool" json:"read_only_pool"`

	// Pragmas are applied to the writer after the standard set, in
	// order, and verified.
	Pragmas []PragmaConfig `yaml:"pragmas" json:"pragmas"`
}

// PragmaConfig is one PRAGMA assignment.
type PragmaConfig struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error. Default: info.
	Level string `yaml:"level" json:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal
	// and JSON otherwise. Default: auto.
	Format string `yaml:"format" json:"format"`
}

// KVConfig configures the key-value store.
type KVConfig struct {
	// Compression is none, lz4, or zstd. Default: zstd.
	Compression string `yaml:"compression" json:"compression"`

	// MinCompressSize is the smallest encoded value, in bytes, that
	// is compressed. Default: 256.
	MinCompressSize int `yaml:"min_compress_size" json:"min_compress_size"`
}

var (
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"auto", "text", "json"}
	compressions = []string{"none", "lz4", "zstd"}
)

// Default returns the configuration used as the base for every loaded
// file.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "${SQLBRIDGE_HOME:-.}/sqlbridge.db",
			ReadOnlyPool: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		KV: KVConfig{
			Compression:     "zstd",
			MinCompressSize: 256,
		},
	}
}

// Load loads the file named by SQLBRIDGE_CONFIG. There is no search
// path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your sqlbridge.yaml, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over Default. Files ending in
// .json or .jsonc are parsed as JSON with comments and trailing commas
// allowed; anything else is YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// Resolved returns a copy of c with path variables expanded. Use it on
// configurations built in code rather than loaded from a file.
func (c *Config) Resolved() *Config {
	copied := *c
	copied.Database.Pragmas = slices.Clone(c.Database.Pragmas)
	copied.expandVariables()
	return &copied
}

func (c *Config) expandVariables() {
	c.Database.Path = expandVars(c.Database.Path, map[string]string{
		"HOME": os.Getenv("HOME"),
	})
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars is consulted
// before the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.Connections < 0 {
		errs = append(errs, fmt.Errorf("database.connections must not be negative, got %d", c.Database.Connections))
	}
	if c.Database.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("database.queue_depth must not be negative, got %d", c.Database.QueueDepth))
	}
	for i, pragma := range c.Database.Pragmas {
		if pragma.Name == "" || pragma.Value == "" {
			errs = append(errs, fmt.Errorf("database.pragmas[%d] needs both name and value", i))
		}
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}

	if !slices.Contains(compressions, c.KV.Compression) {
		errs = append(errs, fmt.Errorf("kv.compression must be one of: %v", compressions))
	}
	if c.KV.MinCompressSize < 0 {
		errs = append(errs, fmt.Errorf("kv.min_compress_size must not be negative, got %d", c.KV.MinCompressSize))
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured level as a slog.Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
