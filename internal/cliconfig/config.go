package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// Default values for settings that are not required.
const (
	DefaultHTTPTimeout  = 5 * time.Minute
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 10 * time.Second
	DefaultMaxBlobBytes = "8MiB"
	DefaultWatchPattern = "*"
	DefaultFileField    = "file"
	DefaultLogLevel     = "info"
)

// Config holds CLI configuration for formship.
type Config struct {
	URL     string
	AuthKey string

	// Fields are form arguments in name=value, name=@path or name=<path form.
	Fields  []string
	Headers map[string]string

	HTTPTimeout  time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// MaxBlobBytes is a human size such as "8MiB"; Validate fills
	// MaxBlobBytesN from it.
	MaxBlobBytes  string
	MaxBlobBytesN int64

	WatchDir     string
	WatchPattern string
	FileField    string
	Once         bool

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:  DefaultHTTPTimeout,
		RetryMax:     DefaultRetryMax,
		RetryWaitMin: DefaultRetryWaitMin,
		RetryWaitMax: DefaultRetryWaitMax,
		MaxBlobBytes: DefaultMaxBlobBytes,
		WatchPattern: DefaultWatchPattern,
		FileField:    DefaultFileField,
		LogLevel:     DefaultLogLevel,
	}
}

// Validate checks the configuration for errors and sets derived values.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", c.URL)
	}

	// Ensure no trailing slash
	c.URL = strings.TrimRight(c.URL, "/")

	return c.ValidateLocal()
}

// ValidateLocal checks the settings that do not involve the server, for
// commands that never connect.
func (c *Config) ValidateLocal() error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry max must not be negative")
	}
	if c.RetryWaitMin <= 0 || c.RetryWaitMax < c.RetryWaitMin {
		return fmt.Errorf("retry wait must satisfy 0 < min <= max, got %s..%s", c.RetryWaitMin, c.RetryWaitMax)
	}

	if c.MaxBlobBytes == "" {
		c.MaxBlobBytes = DefaultMaxBlobBytes
	}
	n, err := units.RAMInBytes(c.MaxBlobBytes)
	if err != nil {
		return fmt.Errorf("parse max-blob-bytes: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("max-blob-bytes must be positive")
	}
	c.MaxBlobBytesN = n

	if c.WatchPattern == "" {
		c.WatchPattern = DefaultWatchPattern
	}
	if c.FileField == "" {
		c.FileField = DefaultFileField
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings replaces a list if the new one is non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// mergeHeaders adds headers that are not already present. Headers set by a
// flag always win over file and environment values.
func (s *configSetter) mergeHeaders(flag string, value map[string]string, dst *map[string]string) {
	if len(value) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(value))
	}
	for k, v := range value {
		if _, ok := (*dst)[k]; ok && s.changed[flag] {
			continue
		}
		(*dst)[k] = v
	}
}

// setInt sets an int value if not negative and flag not changed.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || *value < 0 || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
