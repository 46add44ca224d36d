package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestKeyValues(t *testing.T) {
	fields := KeyValues("method", "POST", "attempt", 2, 42, "odd", "dangling")

	want := []Field{
		{Key: "method", Value: "POST"},
		{Key: "attempt", Value: 2},
		{Key: "42", Value: "odd"},
		{Key: "dangling", Value: nil},
	}
	if len(fields) != len(want) {
		t.Fatalf("len(fields) = %d, want %d", len(fields), len(want))
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %#v, want %#v", i, fields[i], want[i])
		}
	}
}

func TestBytes(t *testing.T) {
	if got := Bytes("size", 1536).Value; got != "1.5 KiB" {
		t.Errorf("Bytes(1536) = %v, want 1.5 KiB", got)
	}
	if got := Bytes("size", -1).Value; got != int64(-1) {
		t.Errorf("Bytes(-1) = %v, want -1", got)
	}
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	z.Debug("hidden")
	z.Info("upload finished",
		String("url", "http://example.com"),
		Int64("sent", 10),
		Duration("took", time.Second),
		Err(errors.New("boom")),
	)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["message"] != "upload finished" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["url"] != "http://example.com" {
		t.Errorf("url = %v", entry["url"])
	}
	if entry["sent"] != float64(10) {
		t.Errorf("sent = %v", entry["sent"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zerolog.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", lvl, err)
	}
	if lvl, err := ParseLevel("debug"); err != nil || lvl != zerolog.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}
