package cliconfig

import (
	"fmt"
	"os"
	"strings"
)

// ApplyEnvConfig applies configuration from environment variables (FORMSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
//
// FORMSHIP_FIELDS holds form arguments separated by newlines and
// FORMSHIP_HEADERS holds "Key: Value" pairs separated by newlines.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("url", os.Getenv("FORMSHIP_URL"), &cfg.URL)
	s.setString("auth-key", os.Getenv("FORMSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setStrings("form", splitLines(os.Getenv("FORMSHIP_FIELDS")), &cfg.Fields)
	s.setString("max-blob-bytes", os.Getenv("FORMSHIP_MAX_BLOB_BYTES"), &cfg.MaxBlobBytes)
	s.setString("dir", os.Getenv("FORMSHIP_WATCH_DIR"), &cfg.WatchDir)
	s.setString("pattern", os.Getenv("FORMSHIP_WATCH_PATTERN"), &cfg.WatchPattern)
	s.setString("file-field", os.Getenv("FORMSHIP_FILE_FIELD"), &cfg.FileField)
	s.setString("log-level", os.Getenv("FORMSHIP_LOG_LEVEL"), &cfg.LogLevel)

	headers, err := ParseHeaders(splitLines(os.Getenv("FORMSHIP_HEADERS")))
	if err != nil {
		return fmt.Errorf("parse FORMSHIP_HEADERS: %w", err)
	}
	s.mergeHeaders("header", headers, &cfg.Headers)

	if err := s.setDuration("timeout", os.Getenv("FORMSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-min", os.Getenv("FORMSHIP_RETRY_WAIT_MIN"), &cfg.RetryWaitMin); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-max", os.Getenv("FORMSHIP_RETRY_WAIT_MAX"), &cfg.RetryWaitMax); err != nil {
		return err
	}
	if err := s.setIntFromString("retry-max", os.Getenv("FORMSHIP_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("FORMSHIP_ONCE"), &cfg.Once)

	return nil
}

// ParseHeaders parses "Key: Value" pairs.
func ParseHeaders(lines []string) (map[string]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("header %q: expected \"Key: Value\"", line)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func splitLines(v string) []string {
	var out []string
	for _, line := range strings.Split(v, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
