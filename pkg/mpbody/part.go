package mpbody

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies where the payload of a part comes from.
type Kind int

const (
	// KindText is a plain form field. It carries no filename and no content type.
	KindText Kind = iota
	// KindBlob is an in-memory byte slice sent as a file upload.
	KindBlob
	// KindFile is a file on disk, read lazily while streaming.
	KindFile
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Part describes one named field of a multipart body.
// Only the payload field matching Kind is meaningful.
type Part struct {
	Name string
	Kind Kind

	// Value is the payload of a text part.
	Value string
	// Data is the payload of a blob part.
	Data []byte
	// Path is the location of a file part.
	Path string

	// Filename is sent in Content-Disposition for blob and file parts.
	Filename string
	// ContentType is sent as the part's Content-Type header when not empty.
	ContentType string
}

const crlf = "\r\n"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// header renders the delimiter line and MIME headers that precede the payload,
// including the blank line that ends the header block.
func (p *Part) header(boundary string) []byte {
	var b bytes.Buffer
	b.WriteString("--")
	b.WriteString(boundary)
	b.WriteString(crlf)
	fmt.Fprintf(&b, `Content-Disposition: form-data; name="%s"`, escapeQuotes(p.Name))
	if p.Kind != KindText {
		fmt.Fprintf(&b, `; filename="%s"`, escapeQuotes(p.Filename))
	}
	b.WriteString(crlf)
	if p.ContentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(p.ContentType)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return b.Bytes()
}

// memoryPayload returns the in-memory payload size for text and blob parts.
func (p *Part) memoryPayload() int64 {
	switch p.Kind {
	case KindText:
		return int64(len(p.Value))
	case KindBlob:
		return int64(len(p.Data))
	default:
		return 0
	}
}

func newTextPart(name, value string) (Part, error) {
	if err := validateName(name); err != nil {
		return Part{}, err
	}
	return Part{Name: name, Kind: KindText, Value: value}, nil
}

func newBlobPart(name string, data []byte, filename, contentType string) (Part, error) {
	if err := validateName(name); err != nil {
		return Part{}, err
	}
	if filename == "" {
		filename = name
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	if err := validateHeaderValue("filename", filename); err != nil {
		return Part{}, err
	}
	if err := validateHeaderValue("content type", contentType); err != nil {
		return Part{}, err
	}
	return Part{
		Name:        name,
		Kind:        KindBlob,
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
	}, nil
}

func newFilePart(name, path, filename, contentType string) (Part, error) {
	if err := validateName(name); err != nil {
		return Part{}, err
	}
	if path == "" {
		return Part{}, fmt.Errorf("%w: empty path for part %q", ErrInvalidArgument, name)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	if contentType == "" {
		contentType = ContentTypeByExtension(filename)
	}
	if err := validateHeaderValue("filename", filename); err != nil {
		return Part{}, err
	}
	if err := validateHeaderValue("content type", contentType); err != nil {
		return Part{}, err
	}
	return Part{
		Name:        name,
		Kind:        KindFile,
		Path:        path,
		Filename:    filename,
		ContentType: contentType,
	}, nil
}

// validateName requires a non-empty, printable ASCII field name.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty part name", ErrInvalidArgument)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: part name %q has non-printable byte 0x%02x", ErrInvalidArgument, name, c)
		}
	}
	return nil
}

// validateHeaderValue rejects values that would break the header block.
func validateHeaderValue(what, v string) error {
	if strings.ContainsAny(v, "\r\n\x00") {
		return fmt.Errorf("%w: %s %q contains a control character", ErrInvalidArgument, what, v)
	}
	return nil
}
