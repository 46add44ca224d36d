// Package uploader sends multipart bodies produced by mpbody over HTTP.
//
// The uploader asks the stream for its content type and exact length before
// the first byte is sent, then lets the transport pull the body. Whenever the
// transport needs the body again (a retry after a 5xx or a dropped
// connection, or a 307/308 redirect) the same stream is Reset and replayed,
// so the declared length stays correct.
//
// # Usage
//
//	up := uploader.New(
//	    uploader.WithLogger(logger),
//	    uploader.WithRetry(3, time.Second, 10*time.Second),
//	)
//
//	resp, err := up.Upload(ctx, stream, uploader.Target{
//	    URL:     "https://example.com/upload",
//	    AuthKey: "api-key",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Summary())
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package uploader
