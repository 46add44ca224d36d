package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	URL          string            `toml:"url"`
	AuthKey      string            `toml:"auth_key"`
	Fields       []string          `toml:"fields"`
	Headers      map[string]string `toml:"headers"`
	HTTPTimeout  string            `toml:"http_timeout"`
	RetryMax     *int              `toml:"retry_max"`
	RetryWaitMin string            `toml:"retry_wait_min"`
	RetryWaitMax string            `toml:"retry_wait_max"`
	MaxBlobBytes string            `toml:"max_blob_bytes"`
	WatchDir     string            `toml:"watch_dir"`
	WatchPattern string            `toml:"watch_pattern"`
	FileField    string            `toml:"file_field"`
	Once         *bool             `toml:"once"`
	LogLevel     string            `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.formship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".formship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("url", fc.URL, &cfg.URL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setStrings("form", fc.Fields, &cfg.Fields)
	s.mergeHeaders("header", fc.Headers, &cfg.Headers)
	s.setString("max-blob-bytes", fc.MaxBlobBytes, &cfg.MaxBlobBytes)
	s.setString("dir", fc.WatchDir, &cfg.WatchDir)
	s.setString("pattern", fc.WatchPattern, &cfg.WatchPattern)
	s.setString("file-field", fc.FileField, &cfg.FileField)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-min", fc.RetryWaitMin, &cfg.RetryWaitMin); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-max", fc.RetryWaitMax, &cfg.RetryWaitMax); err != nil {
		return err
	}

	s.setInt("retry-max", fc.RetryMax, &cfg.RetryMax)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
