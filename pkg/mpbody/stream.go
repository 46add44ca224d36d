package mpbody

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// State is the lifecycle position of a Stream.
type State int

const (
	// StateBuilding accepts new parts.
	StateBuilding State = iota
	// StateReady has a fixed part list; the cursor is at the first byte.
	StateReady
	// StateReading has produced some bytes but not the closing delimiter.
	StateReading
	// StateExhausted has produced the whole body; reads return io.EOF.
	StateExhausted
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateReading:
		return "reading"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// phase is the cursor position inside the current part.
type phase int

const (
	phaseHeader phase = iota
	phasePayload
	phaseTrailer
	phaseClose
	phaseDone
)

const writeToBufferSize = 32 << 10

// Stream is a multipart/form-data body generated on demand.
//
// A Stream is not safe for concurrent use. It is read by one consumer at a
// time; Reset may be called between reads to start over.
type Stream struct {
	boundary string
	parts    []Part

	// sizes holds payload sizes once known; -1 marks a file not yet stat'd.
	sizes  []int64
	length int64

	state State

	// cursor
	index  int
	phase  phase
	offset int64
	header []byte
	file   *os.File

	err    error
	closed bool
}

// New returns an empty Stream with a random boundary.
func New() *Stream {
	return newStream(randomBoundary())
}

// NewWithBoundary returns an empty Stream using the given boundary.
// The boundary must follow the RFC 2046 grammar.
func NewWithBoundary(boundary string) (*Stream, error) {
	if err := validateBoundary(boundary); err != nil {
		return nil, err
	}
	return newStream(boundary), nil
}

func newStream(boundary string) *Stream {
	return &Stream{boundary: boundary, length: -1}
}

// AddText appends a plain form field.
func (s *Stream) AddText(name, value string) error {
	p, err := newTextPart(name, value)
	if err != nil {
		return err
	}
	return s.add(p, int64(len(value)))
}

// AddBlob appends an in-memory file upload. An empty filename defaults to the
// field name and an empty contentType to application/octet-stream.
// data must not be modified until the stream is discarded.
func (s *Stream) AddBlob(name string, data []byte, filename, contentType string) error {
	p, err := newBlobPart(name, data, filename, contentType)
	if err != nil {
		return err
	}
	return s.add(p, int64(len(data)))
}

// AddFile appends a file upload read from path while streaming. The file is
// not touched until TotalLength or Read needs it. An empty filename defaults
// to the base name of path and an empty contentType is inferred from the
// extension.
func (s *Stream) AddFile(name, path, filename, contentType string) error {
	p, err := newFilePart(name, path, filename, contentType)
	if err != nil {
		return err
	}
	return s.add(p, -1)
}

func (s *Stream) add(p Part, size int64) error {
	if s.state != StateBuilding {
		return fmt.Errorf("%w: cannot add part %q in state %s", ErrSealed, p.Name, s.state)
	}
	s.parts = append(s.parts, p)
	s.sizes = append(s.sizes, size)
	return nil
}

// Boundary returns the boundary token. It never changes and does not seal
// the stream.
func (s *Stream) Boundary() string {
	return s.boundary
}

// ContentType returns the value for the request's Content-Type header.
func (s *Stream) ContentType() string {
	return "multipart/form-data; boundary=" + s.boundary
}

// Parts returns a copy of the part descriptors in serialization order.
func (s *Stream) Parts() []Part {
	out := make([]Part, len(s.parts))
	copy(out, s.parts)
	return out
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return s.state
}

// TotalLength returns the exact number of bytes a full read produces.
//
// File parts are stat'd, not read. If any file cannot be stat'd the error
// wraps ErrPartUnavailable and the stream keeps accepting parts. On success
// the stream is sealed and later calls return the same value.
func (s *Stream) TotalLength() (int64, error) {
	if s.length >= 0 {
		return s.length, nil
	}

	sizes := make([]int64, len(s.parts))
	total := int64(len(s.closeDelimiter()))
	for i := range s.parts {
		p := &s.parts[i]
		size := s.sizes[i]
		if size < 0 {
			fi, err := os.Stat(p.Path)
			if err != nil {
				return 0, fmt.Errorf("%w: stat %q for part %q: %w", ErrPartUnavailable, p.Path, p.Name, err)
			}
			if !fi.Mode().IsRegular() {
				return 0, fmt.Errorf("%w: %q for part %q is not a regular file", ErrPartUnavailable, p.Path, p.Name)
			}
			size = fi.Size()
		}
		sizes[i] = size
		total += int64(len(p.header(s.boundary))) + size + int64(len(crlf))
	}

	copy(s.sizes, sizes)
	s.length = total
	s.seal()
	return total, nil
}

// Read implements io.Reader. It fills p from the current cursor position and
// returns 0, io.EOF once the closing delimiter has been produced.
//
// A part that fails (a file that cannot be opened, changed size, or cannot
// be read) makes Read return 0 and the error; the error repeats until Reset.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	s.seal()
	if s.state == StateExhausted {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	s.state = StateReading

	n := 0
	for n < len(p) {
		switch s.phase {
		case phaseHeader:
			if s.index >= len(s.parts) {
				s.phase = phaseClose
				continue
			}
			if s.header == nil {
				part := &s.parts[s.index]
				if part.Kind == KindFile {
					// Hand out what we have before touching the file so a
					// failing open never follows a partial write in one call.
					if n > 0 {
						return n, nil
					}
					if err := s.openFile(); err != nil {
						s.err = err
						return 0, err
					}
				}
				s.header = part.header(s.boundary)
			}
			c := copy(p[n:], s.header[s.offset:])
			n += c
			s.offset += int64(c)
			if s.offset == int64(len(s.header)) {
				s.header = nil
				s.offset = 0
				s.phase = phasePayload
			}

		case phasePayload:
			c, done, err := s.readPayload(p[n:])
			n += c
			if err != nil {
				s.err = err
				s.closeFile()
				return 0, err
			}
			if done {
				s.offset = 0
				s.phase = phaseTrailer
			}

		case phaseTrailer:
			c := copy(p[n:], crlf[s.offset:])
			n += c
			s.offset += int64(c)
			if s.offset == int64(len(crlf)) {
				s.offset = 0
				s.index++
				s.phase = phaseHeader
			}

		case phaseClose:
			if s.header == nil {
				s.header = s.closeDelimiter()
			}
			c := copy(p[n:], s.header[s.offset:])
			n += c
			s.offset += int64(c)
			if s.offset == int64(len(s.header)) {
				s.header = nil
				s.offset = 0
				s.phase = phaseDone
			}

		case phaseDone:
			s.state = StateExhausted
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
	}
	return n, nil
}

// readPayload copies payload bytes of the current part into p.
// done reports that the whole payload has been produced.
func (s *Stream) readPayload(p []byte) (n int, done bool, err error) {
	part := &s.parts[s.index]
	switch part.Kind {
	case KindText:
		n = copy(p, part.Value[s.offset:])
	case KindBlob:
		n = copy(p, part.Data[s.offset:])
	case KindFile:
		return s.readFile(p)
	}
	s.offset += int64(n)
	return n, s.offset == part.memoryPayload(), nil
}

func (s *Stream) readFile(p []byte) (int, bool, error) {
	part := &s.parts[s.index]
	size := s.sizes[s.index]
	remaining := size - s.offset
	if remaining == 0 {
		return 0, true, s.closeFile()
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := s.file.Read(p)
	s.offset += int64(n)
	switch {
	case err == io.EOF && s.offset < size:
		return n, false, fmt.Errorf("%w: %q for part %q ended at %d of %d bytes: %w",
			ErrIO, part.Path, part.Name, s.offset, size, io.ErrUnexpectedEOF)
	case err != nil && err != io.EOF:
		return n, false, fmt.Errorf("%w: read %q for part %q: %w", ErrIO, part.Path, part.Name, err)
	}
	if s.offset == size {
		if err := s.closeFile(); err != nil {
			return n, false, fmt.Errorf("%w: close %q for part %q: %w", ErrIO, part.Path, part.Name, err)
		}
		return n, true, nil
	}
	return n, false, nil
}

// openFile opens the file of the current part and checks that its size
// matches the size already declared for it, recording it on first open.
func (s *Stream) openFile() error {
	part := &s.parts[s.index]
	f, err := os.Open(part.Path)
	if err != nil {
		return fmt.Errorf("%w: open %q for part %q: %w", ErrPartUnavailable, part.Path, part.Name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat %q for part %q: %w", ErrPartUnavailable, part.Path, part.Name, err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return fmt.Errorf("%w: %q for part %q is not a regular file", ErrPartUnavailable, part.Path, part.Name)
	}
	switch size := s.sizes[s.index]; {
	case size < 0:
		s.sizes[s.index] = fi.Size()
	case size != fi.Size():
		f.Close()
		return fmt.Errorf("%w: %q for part %q changed size from %d to %d bytes",
			ErrPartUnavailable, part.Path, part.Name, size, fi.Size())
	}
	s.file = f
	return nil
}

func (s *Stream) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Stream) closeDelimiter() []byte {
	return []byte("--" + s.boundary + "--" + crlf)
}

// seal ends the building phase.
func (s *Stream) seal() {
	if s.state == StateBuilding {
		s.state = StateReady
	}
}

// Reset rewinds the cursor to the first byte of the body. Parts, boundary
// and length are kept. Any open file is closed and reopened when the cursor
// reaches it again. Reset also clears errors from earlier reads and a
// previous Close.
//
// Reset seals a stream that is still building: later Add calls fail with
// ErrSealed.
func (s *Stream) Reset() error {
	err := s.closeFile()
	s.state = StateReady
	s.index = 0
	s.phase = phaseHeader
	s.offset = 0
	s.header = nil
	s.err = nil
	s.closed = false
	return err
}

// Close releases the open file, if any. Reads fail with ErrClosed until the
// next Reset.
func (s *Stream) Close() error {
	s.closed = true
	return s.closeFile()
}

// WriteTo implements io.WriterTo, writing the rest of the body to w.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, writeToBufferSize)
	var total int64
	for {
		n, err := s.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
			if m != n {
				return total, io.ErrShortWrite
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

var (
	_ io.ReadCloser = (*Stream)(nil)
	_ io.WriterTo   = (*Stream)(nil)
)
