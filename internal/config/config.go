// Package config loads the Mensura configuration file.
//
// The file is YAML:
//
//	log:
//	  level: info
//	  format: text
//	server:
//	  port: 8080
//	  allowed_origins: ["http://localhost:3000"]
//	  pieces_dir: ./pieces
//	  edits_per_minute: 120
//	cache:
//	  ttl: 5m
//	catalog:
//	  path: catalog.db
//	archive:
//	  compression: xz
//
// Missing keys keep their defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/Mensura/core/errors"
	"github.com/FocuswithJustin/Mensura/internal/logging"
)

// Config is the full configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Catalog CatalogConfig `yaml:"catalog"`
	Archive ArchiveConfig `yaml:"archive"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`  // CORS and WebSocket origins (empty = allow all)
	PiecesDir      string   `yaml:"pieces_dir"`       // root for pieces opened by path
	APIKey         string   `yaml:"api_key"`          // required on mutating requests when set
	EditsPerMinute int      `yaml:"edits_per_minute"` // per-client budget, 0 = unlimited
	EditBurst      int      `yaml:"edit_burst"`
}

// CacheConfig configures the materialized-version cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// CatalogConfig locates the apparatus catalog database.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig selects the compression of edition archives.
type ArchiveConfig struct {
	Compression string `yaml:"compression"` // xz or gzip
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Port: 8080, PiecesDir: "."},
		Cache:   CacheConfig{TTL: 5 * time.Minute},
		Catalog: CatalogConfig{Path: "mensura-catalog.db"},
		Archive: ArchiveConfig{Compression: "xz"},
	}
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewValidation("server.port", fmt.Sprintf("port %d out of range", c.Server.Port))
	}
	if c.Server.EditsPerMinute < 0 || c.Server.EditBurst < 0 {
		return errors.NewValidation("server.edits_per_minute", "rate limits must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return errors.NewValidation("cache.ttl", "ttl must be positive")
	}
	if c.Catalog.Path == "" {
		return errors.NewValidation("catalog.path", "path is required")
	}
	switch c.Archive.Compression {
	case "xz", "gzip":
	default:
		return errors.NewValidation("archive.compression", fmt.Sprintf("unknown compression %q", c.Archive.Compression))
	}
	return nil
}

// readFile is injectable for testing.
var readFile = os.ReadFile

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := readFile(path)
	if err != nil {
		return cfg, errors.NewIO("read", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg, rejecting unknown keys, then validates.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return &errors.ParseError{Format: "config", Message: fmt.Sprint(te.Errors), Err: err}
		}
		if errors.Is(err, io.EOF) {
			return cfg.Validate()
		}
		return &errors.ParseError{Format: "config", Message: err.Error(), Err: err}
	}
	return cfg.Validate()
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
