// Package formship streams multipart/form-data uploads.
//
// Example usage:
//
//	s := formship.NewStream()
//	if err := s.AddText("album", "summer"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.AddFile("photo", "/path/to/beach.jpg", "", ""); err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := formship.Upload(context.Background(), s, "https://example.com/upload")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.Summary())
package formship

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/formship/pkg/mpbody"
	"github.com/bft-labs/formship/pkg/uploader"
)

// Stream is a multipart/form-data body generated on demand.
type Stream = mpbody.Stream

// Part describes one form field of a Stream.
type Part = mpbody.Part

// Target is the destination of an upload.
type Target = uploader.Target

// Response is the outcome of an upload.
type Response = uploader.Response

// NewStream returns an empty Stream with a random boundary.
func NewStream() *Stream {
	return mpbody.New()
}

// Upload sends s to url with the default retry policy.
// Use package uploader directly for logging, progress or custom clients.
func Upload(ctx context.Context, s *Stream, url string) (*Response, error) {
	return uploader.New().Upload(ctx, s, Target{URL: url})
}

// Logger returns a console zerolog logger writing to stderr, the way the
// formship command logs.
func Logger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}
