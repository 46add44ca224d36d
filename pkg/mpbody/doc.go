// Package mpbody produces multipart/form-data request bodies as a stream.
//
// A Stream collects an ordered list of parts (plain text fields, in-memory
// blobs and files on disk), fixes a boundary, reports the exact encoded
// length up front and then emits the encoded body lazily through Read.
// Files are never loaded into memory: they are stat'd to compute the length
// and read sequentially, straight into the caller's buffer, when the cursor
// reaches them.
//
// # Usage
//
//	s := mpbody.New()
//	if err := s.AddText("string1", "string1 value"); err != nil {
//	    return err
//	}
//	if err := s.AddFile("file2", "/path/to/file2.jpg", "", ""); err != nil {
//	    return err
//	}
//
//	length, err := s.TotalLength()
//	if err != nil {
//	    return err
//	}
//	req.Header.Set("Content-Type", s.ContentType())
//	req.ContentLength = length
//
// When a transport needs the body again (a retry, a redirect), call Reset on
// the same Stream. The boundary and length never change after the stream has
// been sealed, so headers computed earlier stay valid.
//
// # Wire Format
//
// Each part is written as
//
//	--<boundary>\r\n
//	Content-Disposition: form-data; name="<name>"[; filename="<filename>"]\r\n
//	[Content-Type: <type>\r\n]
//	\r\n
//	<payload>\r\n
//
// and the body ends with "--<boundary>--\r\n".
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package mpbody
