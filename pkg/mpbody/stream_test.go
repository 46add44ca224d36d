package mpbody

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "test-boundary"

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	s, err := NewWithBoundary(testBoundary)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// drain reads s to EOF with a buffer of the given size.
func drain(t *testing.T, s *Stream, bufSize int) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, bufSize)
	for {
		n, err := s.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			require.Zero(t, n)
			return out.Bytes()
		}
		require.NoError(t, err)
	}
}

func mixedStream(t *testing.T) *Stream {
	t.Helper()
	dir := t.TempDir()
	jpg := writeFile(t, dir, "file2.jpg", bytes.Repeat([]byte{0xff, 0xd8, 0x00, 0x42}, 5000))
	empty := writeFile(t, dir, "empty.bin", nil)

	s := newTestStream(t)
	require.NoError(t, s.AddText("string1", "string1 value"))
	require.NoError(t, s.AddBlob("data1", []byte("blob bytes\r\nwith crlf"), "", ""))
	require.NoError(t, s.AddText("string2", "string2 value"))
	require.NoError(t, s.AddFile("file2", jpg, "", ""))
	require.NoError(t, s.AddFile("empty", empty, "renamed.dat", "text/plain"))
	require.NoError(t, s.AddText("string3", ""))
	return s
}

func TestTotalLength_MatchesDrainedBytes(t *testing.T) {
	for _, size := range []int{1, 3, 7, 64, 4096, 1 << 16} {
		s := mixedStream(t)
		length, err := s.TotalLength()
		require.NoError(t, err)

		body := drain(t, s, size)
		assert.Equal(t, length, int64(len(body)), "buffer size %d", size)
		assert.Equal(t, StateExhausted, s.State())
	}
}

func TestReset_ReproducesIdenticalBytes(t *testing.T) {
	s := mixedStream(t)
	first := drain(t, s, 4096)

	for i, size := range []int{1, 13, 512, 1 << 20} {
		require.NoError(t, s.Reset())
		assert.Equal(t, StateReady, s.State())
		again := drain(t, s, size)
		require.True(t, bytes.Equal(first, again), "drain %d differs", i)
	}

	// reset in the middle of a file payload
	require.NoError(t, s.Reset())
	buf := make([]byte, 1000)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	require.NotNil(t, s.file)
	require.NoError(t, s.Reset())
	assert.Nil(t, s.file)
	assert.Equal(t, first, drain(t, s, 100))
}

func TestEmptyStream(t *testing.T) {
	s := newTestStream(t)
	length, err := s.TotalLength()
	require.NoError(t, err)

	want := "--" + testBoundary + "--\r\n"
	assert.Equal(t, int64(len(want)), length)
	assert.Equal(t, want, string(drain(t, s, 5)))
}

func TestTextPartEncoding(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddText("string1", "string1 value"))

	body := string(drain(t, s, 4096))
	want := "--test-boundary\r\n" +
		"Content-Disposition: form-data; name=\"string1\"\r\n" +
		"\r\n" +
		"string1 value\r\n" +
		"--test-boundary--\r\n"
	assert.Equal(t, want, body)
	assert.NotContains(t, body, "Content-Type")
}

func TestThreeTextParts_ReferenceEncoding(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	require.NoError(t, s.AddText("b", "2"))
	require.NoError(t, s.AddText("c", "3"))

	want := "--test-boundary\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n" +
		"--test-boundary\r\nContent-Disposition: form-data; name=\"b\"\r\n\r\n2\r\n" +
		"--test-boundary\r\nContent-Disposition: form-data; name=\"c\"\r\n\r\n3\r\n" +
		"--test-boundary--\r\n"

	length, err := s.TotalLength()
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), length)
	assert.Equal(t, want, string(drain(t, s, 2)))
}

func TestMatchesStdlibWriter(t *testing.T) {
	s := New()
	require.NoError(t, s.AddText("foo", "fux"))
	require.NoError(t, s.AddText("bar", "yolo"))
	got := drain(t, s, 4096)

	var want bytes.Buffer
	mw := multipart.NewWriter(&want)
	require.NoError(t, mw.SetBoundary(s.Boundary()))
	require.NoError(t, mw.WriteField("foo", "fux"))
	require.NoError(t, mw.WriteField("bar", "yolo"))
	require.NoError(t, mw.Close())

	assert.Equal(t, want.String(), string(got))
	assert.Equal(t, mw.FormDataContentType(), s.ContentType())
}

func TestParsesWithMultipartReader(t *testing.T) {
	s := mixedStream(t)
	body := drain(t, s, 1000)

	mediaType, params, err := mime.ParseMediaType(s.ContentType())
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	type seen struct {
		name, filename, contentType string
		size                        int
	}
	var parts []seen
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, seen{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), len(data)})
	}

	assert.Equal(t, []seen{
		{"string1", "", "", len("string1 value")},
		{"data1", "data1", DefaultContentType, len("blob bytes\r\nwith crlf")},
		{"string2", "", "", len("string2 value")},
		{"file2", "file2.jpg", "image/jpeg", 20000},
		{"empty", "renamed.dat", "text/plain", 0},
		{"string3", "", "", 0},
	}, parts)
}

func TestTotalLength_DeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.txt", []byte("soon gone"))

	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	require.NoError(t, s.AddFile("f", path, "", ""))
	require.NoError(t, os.Remove(path))

	_, err := s.TotalLength()
	require.ErrorIs(t, err, ErrPartUnavailable)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, StateBuilding, s.State())

	// a failed computation is not cached
	_, err = s.TotalLength()
	require.ErrorIs(t, err, ErrPartUnavailable)

	require.NoError(t, os.WriteFile(path, []byte("back"), 0o644))
	length, err := s.TotalLength()
	require.NoError(t, err)
	assert.Equal(t, length, int64(len(drain(t, s, 64))))
}

func TestTotalLength_Directory(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddFile("dir", t.TempDir(), "x", ""))

	_, err := s.TotalLength()
	require.ErrorIs(t, err, ErrPartUnavailable)
}

func TestAppendAfterBoundaryQuery(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	boundary := s.Boundary()
	require.NoError(t, s.AddText("b", "2"))
	assert.Equal(t, boundary, s.Boundary())

	length, err := s.TotalLength()
	require.NoError(t, err)
	assert.Equal(t, length, int64(len(drain(t, s, 4096))))
	assert.Len(t, s.Parts(), 2)
}

func TestAppendAfterSeal(t *testing.T) {
	t.Run("after read", func(t *testing.T) {
		s := newTestStream(t)
		require.NoError(t, s.AddText("a", "1"))
		_, err := s.Read(make([]byte, 4))
		require.NoError(t, err)

		require.ErrorIs(t, s.AddText("b", "2"), ErrSealed)
		require.ErrorIs(t, s.AddBlob("c", []byte("x"), "", ""), ErrSealed)
		require.ErrorIs(t, s.AddFile("d", "/tmp/x", "", ""), ErrSealed)
		assert.Len(t, s.Parts(), 1)
	})

	t.Run("after total length", func(t *testing.T) {
		s := newTestStream(t)
		_, err := s.TotalLength()
		require.NoError(t, err)
		require.ErrorIs(t, s.AddText("b", "2"), ErrSealed)
	})

	t.Run("after reset", func(t *testing.T) {
		s := newTestStream(t)
		require.NoError(t, s.Reset())
		require.ErrorIs(t, s.AddText("b", "2"), ErrSealed)
	})
}

func TestAddValidation(t *testing.T) {
	s := newTestStream(t)

	require.ErrorIs(t, s.AddText("", "v"), ErrInvalidArgument)
	require.ErrorIs(t, s.AddText("bad\nname", "v"), ErrInvalidArgument)
	require.ErrorIs(t, s.AddText("caf\xc3\xa9", "v"), ErrInvalidArgument)
	require.ErrorIs(t, s.AddBlob("", nil, "", ""), ErrInvalidArgument)
	require.ErrorIs(t, s.AddBlob("b", nil, "a\r\nb", ""), ErrInvalidArgument)
	require.ErrorIs(t, s.AddFile("f", "", "", ""), ErrInvalidArgument)
	require.ErrorIs(t, s.AddFile("f", "/x", "", "text/plain\r\nX-Evil: 1"), ErrInvalidArgument)

	assert.Empty(t, s.Parts())
	assert.Equal(t, StateBuilding, s.State())
}

func TestQuoteEscaping(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddBlob(`we"ird\name`, []byte("x"), `file "1".txt`, ""))

	body := string(drain(t, s, 4096))
	assert.Contains(t, body, `Content-Disposition: form-data; name="we\"ird\\name"; filename="file \"1\".txt"`+"\r\n")
}

func TestRead_UnavailableFileEmitsNoPartialPart(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", []byte("payload"))

	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	require.NoError(t, s.AddFile("f", path, "", ""))
	_, err := s.TotalLength()
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	buf := make([]byte, 4096)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "--test-boundary\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n", string(buf[:n]))

	n, err = s.Read(buf)
	assert.Zero(t, n)
	require.ErrorIs(t, err, ErrPartUnavailable)

	// sticky until reset
	_, err = s.Read(buf)
	require.ErrorIs(t, err, ErrPartUnavailable)

	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	require.NoError(t, s.Reset())
	length, _ := s.TotalLength()
	assert.Equal(t, length, int64(len(drain(t, s, 4096))))
}

func TestRead_FileSizeChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", []byte("0123456789"))

	s := newTestStream(t)
	require.NoError(t, s.AddFile("f", path, "", ""))
	length, err := s.TotalLength()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("0123456789abcdef"), 0o644))
	n, err := s.Read(make([]byte, 4096))
	assert.Zero(t, n)
	require.ErrorIs(t, err, ErrPartUnavailable)

	// declared length never changes
	again, err := s.TotalLength()
	require.NoError(t, err)
	assert.Equal(t, length, again)
}

func TestRead_FileShrinksMidPayload(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("0123456789"), 1000)
	path := writeFile(t, dir, "f.bin", data)

	s := newTestStream(t)
	require.NoError(t, s.AddFile("f", path, "", ""))
	length, err := s.TotalLength()
	require.NoError(t, err)

	// the header is longer than 100 bytes, so the file is open afterwards
	n, err := s.Read(make([]byte, 100))
	require.NoError(t, err)
	require.Equal(t, 100, n)
	require.NotNil(t, s.file)

	require.NoError(t, os.Truncate(path, 50))

	buf := make([]byte, 4096)
	for err == nil {
		_, err = s.Read(buf)
	}
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Nil(t, s.file)

	n, again := s.Read(buf)
	assert.Zero(t, n)
	assert.Equal(t, err, again)

	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, s.Reset())
	body := drain(t, s, 512)
	assert.Equal(t, length, int64(len(body)))
}

func TestRead_WithoutTotalLengthRecordsSize(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", []byte(strings.Repeat("z", 1000)))

	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	require.NoError(t, s.AddFile("f", path, "", ""))

	body := drain(t, s, 128)
	length, err := s.TotalLength()
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), length)
}

func TestCloseThenReset(t *testing.T) {
	s := mixedStream(t)
	first := drain(t, s, 4096)

	require.NoError(t, s.Reset())
	_, err := io.ReadFull(s, make([]byte, 1000))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Nil(t, s.file)

	_, err = s.Read(make([]byte, 10))
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, s.Reset())
	assert.Equal(t, first, drain(t, s, 4096))
}

func TestExhaustedReadsReturnEOF(t *testing.T) {
	s := newTestStream(t)
	require.NoError(t, s.AddText("a", "1"))
	drain(t, s, 4096)

	for i := 0; i < 3; i++ {
		n, err := s.Read(make([]byte, 10))
		assert.Zero(t, n)
		assert.Equal(t, io.EOF, err)
	}
}

func TestWriteTo(t *testing.T) {
	s := mixedStream(t)
	length, err := s.TotalLength()
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, s)
	require.NoError(t, err)
	assert.Equal(t, length, n)

	require.NoError(t, s.Reset())
	assert.Equal(t, buf.Bytes(), drain(t, s, 3))
}

func TestBoundary(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a.Boundary(), b.Boundary())
	assert.True(t, strings.HasPrefix(a.Boundary(), boundaryPrefix))
	require.NoError(t, validateBoundary(a.Boundary()))

	for _, bad := range []string{"", strings.Repeat("x", 71), "ends with space ", "semi;colon", "new\nline"} {
		_, err := NewWithBoundary(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, "boundary %q", bad)
	}
	for _, good := range []string{"x", strings.Repeat("x", 70), "with inner space", "a'()+_,-./:=?b"} {
		_, err := NewWithBoundary(good)
		assert.NoError(t, err, "boundary %q", good)
	}
}

func TestContentTypeByExtension(t *testing.T) {
	tests := map[string]string{
		"file2.jpg":  "image/jpeg",
		"FILE3.MP3":  "audio/mpeg",
		"Info.plist": "application/x-plist",
		"noext":      DefaultContentType,
		"x.unknownz": DefaultContentType,
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentTypeByExtension(name), name)
	}
}
