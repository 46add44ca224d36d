package uploader

// Target describes where a body is sent.
type Target struct {
	// URL is the absolute URL the body is POSTed to.
	URL string

	// AuthKey is sent as a bearer token when not empty.
	AuthKey string

	// Headers are extra request headers. Content-Type and Content-Length
	// are always derived from the stream and cannot be overridden.
	Headers map[string]string
}
