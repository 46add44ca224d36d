package uploader

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Response is the buffered result of an upload.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body holds at most the configured number of response bytes.
	Body []byte
	// Truncated reports that Body was cut at the limit.
	Truncated bool

	// Sent is the number of body bytes the final attempt handed to the transport.
	Sent int64
	// Attempts counts how many times the body was started.
	Attempts int
	Duration time.Duration
}

// Summary renders the response headers followed by "<code>: <status text>".
func (r *Response) Summary() string {
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(r.Header[k], ", "))
		b.WriteString("\r\n")
	}
	b.WriteString(strconv.Itoa(r.StatusCode))
	b.WriteString(": ")
	b.WriteString(http.StatusText(r.StatusCode))
	return b.String()
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode/100 == 2
}
