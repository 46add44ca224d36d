package log

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Logger provides structured logging capabilities.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Bytes creates a field rendering a byte count for humans, e.g. "1.2 MiB".
func Bytes(key string, n int64) Field {
	if n < 0 {
		return Field{Key: key, Value: n}
	}
	return Field{Key: key, Value: humanize.IBytes(uint64(n))}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// KeyValues converts alternating key/value pairs into fields.
// Non-string keys are formatted with %v; a trailing key without a value
// gets a nil value.
func KeyValues(kv ...interface{}) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		var value interface{}
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}
