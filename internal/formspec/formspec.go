// Package formspec parses curl-style form arguments into multipart parts.
//
//	name=value                      text field
//	name=@path[;type=T][;filename=F] file streamed from disk; path may be a glob
//	name=<path[;type=T][;filename=F] file loaded into memory as a blob
//
// A text value that really starts with '@' or '<' is written with a leading
// backslash: name=\@handle.
package formspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/bft-labs/formship/pkg/mpbody"
)

// Source says where a part's payload comes from.
type Source int

const (
	// SourceText is a literal field value.
	SourceText Source = iota
	// SourceFile is a file streamed from disk; Value may be a glob.
	SourceFile
	// SourceBlob is a file read into memory when the spec is applied.
	SourceBlob
)

var (
	// ErrMalformed is returned for arguments that do not follow the syntax.
	ErrMalformed = errors.New("formspec: malformed argument")

	// ErrNoMatch is returned when a file glob matches nothing.
	ErrNoMatch = errors.New("formspec: pattern matched no files")

	// ErrTooLarge is returned when a blob exceeds the in-memory limit.
	ErrTooLarge = errors.New("formspec: blob too large")
)

// Spec is one parsed form argument.
type Spec struct {
	Name   string
	Source Source
	// Value is the text value, or the path (or glob) for file and blob sources.
	Value       string
	Filename    string
	ContentType string
}

// Parse parses a single argument.
func Parse(arg string) (Spec, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return Spec{}, fmt.Errorf("%w: %q: expected name=value", ErrMalformed, arg)
	}

	spec := Spec{Name: name}
	switch {
	case strings.HasPrefix(value, `\@`), strings.HasPrefix(value, `\<`):
		spec.Source = SourceText
		spec.Value = value[1:]
		return spec, nil
	case strings.HasPrefix(value, "@"):
		spec.Source = SourceFile
	case strings.HasPrefix(value, "<"):
		spec.Source = SourceBlob
	default:
		spec.Source = SourceText
		spec.Value = value
		return spec, nil
	}

	fields := strings.Split(value[1:], ";")
	spec.Value = fields[0]
	if spec.Value == "" {
		return Spec{}, fmt.Errorf("%w: %q: empty path", ErrMalformed, arg)
	}
	if spec.Value == "-" {
		return Spec{}, fmt.Errorf("%w: %q: reading from stdin is not supported", ErrMalformed, arg)
	}
	for _, opt := range fields[1:] {
		k, v, ok := strings.Cut(opt, "=")
		if !ok {
			return Spec{}, fmt.Errorf("%w: %q: option %q has no value", ErrMalformed, arg, opt)
		}
		switch strings.TrimSpace(k) {
		case "type":
			spec.ContentType = v
		case "filename":
			spec.Filename = v
		default:
			return Spec{}, fmt.Errorf("%w: %q: unknown option %q", ErrMalformed, arg, k)
		}
	}
	return spec, nil
}

// ParseAll parses every argument, stopping at the first error.
func ParseAll(args []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(args))
	for _, arg := range args {
		spec, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Expand resolves file globs into one spec per matching file, in lexical
// order. Specs without glob characters are returned unchanged. An explicit
// filename only applies when the pattern matches a single file.
func Expand(spec Spec) ([]Spec, error) {
	if spec.Source == SourceText || !hasMeta(spec.Value) {
		return []Spec{spec}, nil
	}

	base, pattern := doublestar.SplitPattern(filepath.ToSlash(spec.Value))
	matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", spec.Value, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q for part %q", ErrNoMatch, spec.Value, spec.Name)
	}
	sort.Strings(matches)

	out := make([]Spec, 0, len(matches))
	for _, m := range matches {
		s := spec
		s.Value = filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
		if len(matches) > 1 {
			s.Filename = ""
		}
		out = append(out, s)
	}
	return out, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// Limits bounds what Apply loads into memory.
type Limits struct {
	// MaxBlobBytes caps a single '<' part; zero means no limit.
	MaxBlobBytes int64
}

// Apply expands specs and appends the resulting parts to stream in order.
func Apply(stream *mpbody.Stream, specs []Spec, limits Limits) error {
	for _, spec := range specs {
		expanded, err := Expand(spec)
		if err != nil {
			return err
		}
		for _, s := range expanded {
			if err := add(stream, s, limits); err != nil {
				return err
			}
		}
	}
	return nil
}

func add(stream *mpbody.Stream, s Spec, limits Limits) error {
	switch s.Source {
	case SourceText:
		return stream.AddText(s.Name, s.Value)
	case SourceFile:
		return stream.AddFile(s.Name, s.Value, s.Filename, s.ContentType)
	case SourceBlob:
		data, err := readBlob(s.Value, limits.MaxBlobBytes)
		if err != nil {
			return fmt.Errorf("part %q: %w", s.Name, err)
		}
		filename := s.Filename
		if filename == "" {
			filename = filepath.Base(s.Value)
		}
		contentType := s.ContentType
		if contentType == "" {
			contentType = mpbody.ContentTypeByExtension(filename)
		}
		return stream.AddBlob(s.Name, data, filename, contentType)
	default:
		return fmt.Errorf("%w: unknown source %d for part %q", ErrMalformed, s.Source, s.Name)
	}
}

func readBlob(path string, limit int64) ([]byte, error) {
	if limit > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if fi.Size() > limit {
			return nil, fmt.Errorf("%w: %q is %s, limit is %s", ErrTooLarge, path,
				humanize.IBytes(uint64(fi.Size())), humanize.IBytes(uint64(limit)))
		}
	}
	return os.ReadFile(path)
}
