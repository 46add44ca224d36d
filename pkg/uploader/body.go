package uploader

import (
	"errors"
	"math"
	"sync"

	"github.com/bft-labs/formship/pkg/mpbody"
)

// progressInterval is the number of bytes between progress reports.
const progressInterval int64 = 64 << 10

// ProgressFunc receives the bytes handed to the transport for the current
// attempt and the declared total. sent restarts from zero on every retry.
type ProgressFunc func(sent, total int64)

// errStaleBody is returned to readers of a body that belongs to an attempt
// the transport has already given up on.
var errStaleBody = errors.New("uploader: body replaced by a newer attempt")

// body shares one stream between successive transport attempts.
//
// net/http may keep reading or close a request body from its own goroutine
// after the round trip returned, so every access to the stream is serialized
// and each attempt gets a handle that stops working once a newer attempt
// has reset the stream.
type body struct {
	mu       sync.Mutex
	stream   *mpbody.Stream
	length   int64
	progress ProgressFunc

	gen      uint64
	attempts int
	sent     int64
	reported int64
}

func newBody(stream *mpbody.Stream, length int64, progress ProgressFunc) *body {
	return &body{stream: stream, length: length, progress: progress}
}

// attempt rewinds the stream and returns a handle for a new transport attempt.
func (b *body) attempt() (*attemptBody, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.stream.Reset(); err != nil {
		return nil, err
	}
	b.gen++
	b.sent = 0
	b.reported = 0
	return &attemptBody{body: b, gen: b.gen}, nil
}

// release closes the stream's open file once the upload is over.
func (b *body) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	return b.stream.Close()
}

func (b *body) stats() (sent int64, attempts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent, b.attempts
}

// attemptBody is the request body of one transport attempt.
type attemptBody struct {
	body    *body
	gen     uint64
	started bool
}

// Read implements io.Reader.
func (a *attemptBody) Read(p []byte) (int, error) {
	b := a.body
	b.mu.Lock()
	defer b.mu.Unlock()

	if a.gen != b.gen {
		return 0, errStaleBody
	}
	if !a.started {
		a.started = true
		b.attempts++
	}
	n, err := b.stream.Read(p)
	b.sent += int64(n)
	if b.progress != nil && (b.sent-b.reported >= progressInterval || (b.sent == b.length && b.reported != b.sent)) {
		b.reported = b.sent
		b.progress(b.sent, b.length)
	}
	return n, err
}

// Close implements io.Closer. Closing a stale handle is a no-op.
func (a *attemptBody) Close() error {
	b := a.body
	b.mu.Lock()
	defer b.mu.Unlock()

	if a.gen != b.gen {
		return nil
	}
	return b.stream.Close()
}

// Len lets the retrying client discover the body length. It is capped at
// the largest int; the request's ContentLength carries the exact value.
func (a *attemptBody) Len() int {
	if a.body.length > math.MaxInt {
		return math.MaxInt
	}
	return int(a.body.length)
}
