// Package log provides the logging abstraction used by formship components.
//
// Components accept a Logger and never talk to a logging library directly.
// A zerolog adapter is provided for the CLI and a no-op logger for library
// callers and tests.
//
// # Usage
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel)
//	logger.Info("upload finished",
//	    log.String("url", target.URL),
//	    log.Bytes("sent", n),
//	)
//
// Libraries that log with alternating key/value pairs can be bridged with
// KeyValues:
//
//	logger.Debug(msg, log.KeyValues(keysAndValues...)...)
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
