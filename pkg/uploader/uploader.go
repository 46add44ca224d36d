package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/bft-labs/formship/pkg/log"
	"github.com/bft-labs/formship/pkg/mpbody"
)

// Default transport settings.
const (
	DefaultRetryMax         = 3
	DefaultRetryWaitMin     = 500 * time.Millisecond
	DefaultRetryWaitMax     = 10 * time.Second
	DefaultTimeout          = 5 * time.Minute
	DefaultMaxResponseBytes = 1 << 20
)

var userAgent = "formship-uploader/" + Version + " mpbody/" + mpbody.Version

var (
	// ErrNoURL is returned when the target has no URL.
	ErrNoURL = errors.New("uploader: target URL is required")

	// ErrUnexpectedStatus is returned, together with the response, when the
	// server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("uploader: unexpected status")
)

// Uploader POSTs multipart streams with retries.
type Uploader struct {
	client           *retryablehttp.Client
	logger           log.Logger
	progress         ProgressFunc
	maxResponseBytes int64
	hostname         string
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger for the uploader and its retrying client.
func WithLogger(logger log.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) {
		u.client.HTTPClient = c
	}
}

// WithRetry sets how many times a failed attempt is retried and the
// bounds of the exponential wait between attempts.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(u *Uploader) {
		u.client.RetryMax = max
		u.client.RetryWaitMin = waitMin
		u.client.RetryWaitMax = waitMax
	}
}

// WithTimeout bounds a single attempt, including sending the body.
func WithTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		u.client.HTTPClient.Timeout = d
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(u *Uploader) {
		u.progress = fn
	}
}

// WithMaxResponseBytes limits how much of the response body is buffered.
func WithMaxResponseBytes(n int64) Option {
	return func(u *Uploader) {
		u.maxResponseBytes = n
	}
}

// New creates an Uploader.
func New(opts ...Option) *Uploader {
	client := retryablehttp.NewClient()
	client.RetryMax = DefaultRetryMax
	client.RetryWaitMin = DefaultRetryWaitMin
	client.RetryWaitMax = DefaultRetryWaitMax
	client.HTTPClient.Timeout = DefaultTimeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	hostname, _ := os.Hostname()
	u := &Uploader{
		client:           client,
		logger:           log.NewNoopLogger(),
		maxResponseBytes: DefaultMaxResponseBytes,
		hostname:         hostname,
	}
	for _, opt := range opts {
		opt(u)
	}

	client.Logger = retryLogger{u.logger}
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			u.logger.Warn("retrying upload",
				log.String("url", req.URL.String()),
				log.Int("attempt", attempt+1),
			)
		}
	}
	return u
}

// Upload sends stream to target as a multipart/form-data POST.
//
// The stream's length is computed first, so a missing file fails before any
// connection is made. The stream is reset for every attempt and its open file
// is released when Upload returns. For a non-2xx answer the response is
// returned together with an error wrapping ErrUnexpectedStatus.
func (u *Uploader) Upload(ctx context.Context, stream *mpbody.Stream, target Target) (*Response, error) {
	if target.URL == "" {
		return nil, ErrNoURL
	}

	length, err := stream.TotalLength()
	if err != nil {
		return nil, fmt.Errorf("compute body length: %w", err)
	}

	b := newBody(stream, length, u.progress)
	defer func() {
		if err := b.release(); err != nil {
			u.logger.Warn("release body", log.Err(err))
		}
	}()

	req, err := retryablehttp.NewRequest(http.MethodPost, target.URL, retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return b.attempt()
	}))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)

	// Set explicitly so the declared length never depends on Len.
	req.ContentLength = length
	req.GetBody = func() (io.ReadCloser, error) {
		return b.attempt()
	}

	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", stream.ContentType())
	req.Header.Set("Content-Length", strconv.FormatInt(length, 10))
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Formship-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	if u.hostname != "" {
		req.Header.Set("X-Formship-Hostname", u.hostname)
	}
	if target.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+target.AuthKey)
	}

	u.logger.Debug("starting upload",
		log.String("url", target.URL),
		log.Int("parts", len(stream.Parts())),
		log.Bytes("length", length),
	)

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	out.Body, out.Truncated, err = readLimited(resp.Body, u.maxResponseBytes)
	out.Duration = time.Since(start)
	out.Sent, out.Attempts = b.stats()
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}

	u.logger.Info("upload finished",
		log.String("url", target.URL),
		log.Int("status", resp.StatusCode),
		log.Bytes("sent", out.Sent),
		log.Int("attempts", out.Attempts),
		log.Duration("took", out.Duration),
	)

	if !out.OK() {
		return out, fmt.Errorf("%w: server returned %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(out.Body))
	}
	return out, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		_, err := io.Copy(io.Discard, r)
		return nil, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return data, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}
