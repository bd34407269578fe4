package eventlog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/keytrace/internal/archive"
	"github.com/verte-zerg/keytrace/internal/model"
)

var base = time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)

func sampleEvents() []model.Event {
	return []model.Event{
		{Timestamp: base, Kind: model.KindInsert, Payload: "h"},
		{Timestamp: base.Add(150 * time.Millisecond), Kind: model.KindInsert, Payload: "|"},
		{Timestamp: base.Add(time.Second), Kind: model.KindKey, Payload: "space"},
		{Timestamp: base.Add(2 * time.Second), Kind: model.KindDeleteRun, Payload: "3"},
		{Timestamp: base.Add(3*time.Second + 123456*time.Microsecond), Kind: model.KindCommand, Payload: "COPY"},
		{Timestamp: base.Add(2 * time.Minute), Kind: model.KindHeartbeat},
		{Timestamp: base.Add(3 * time.Minute), Kind: model.KindStop},
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	input := sampleEvents()
	for _, ev := range input {
		if err := w.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if w.Count() != len(input) {
		t.Fatalf("expected %d lines, got %d", len(input), w.Count())
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(input) {
		t.Fatalf("expected %d events, got %d", len(input), len(got))
	}
	for i := range input {
		if !got[i].Timestamp.Equal(input[i].Timestamp) || got[i].Kind != input[i].Kind || got[i].Payload != input[i].Payload {
			t.Fatalf("event %d mismatch: got %+v want %+v", i, got[i], input[i])
		}
	}
}

func TestFormatLineOmitsMarkerPayload(t *testing.T) {
	line := FormatLine(model.Event{Timestamp: base, Kind: model.KindHeartbeat, Payload: "ignored"})
	if line != "2024-03-14T09:26:00.000000+00:00|HEARTBEAT|" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(strings.NewReader("")); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog, got %v", err)
	}
	if _, err := Load(strings.NewReader("\n\n  \n")); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog for blank lines, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	cases := map[string]string{
		"no kind":       "2024-03-14T09:26:00.000000+00:00\n",
		"empty kind":    "2024-03-14T09:26:00.000000+00:00|\n",
		"bad timestamp": "yesterday|INS|a\n",
		"unknown kind":  "2024-03-14T09:26:00.000000+00:00|MOUSE|x\n",
		"bad run":       "2024-03-14T09:26:00.000000+00:00|DEL|0\n",
	}
	for name, input := range cases {
		_, err := Load(strings.NewReader("2024-03-14T09:25:00.000000+00:00|INS|a\n" + input))
		var malformed *MalformedLogError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected MalformedLogError, got %v", name, err)
		}
		if malformed.Line != 2 {
			t.Fatalf("%s: expected line 2, got %d", name, malformed.Line)
		}
	}
}

func TestLoadAcceptsOffsetlessTimestamps(t *testing.T) {
	events, err := Load(strings.NewReader("2024-03-14T09:26:00.123456|INS|a\n2024-03-14T09:28:00|HEARTBEAT|\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Timestamp.Nanosecond() != 123456000 {
		t.Fatalf("expected microseconds preserved, got %d", events[0].Timestamp.Nanosecond())
	}
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "session.log")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Append(model.Event{Timestamp: base, Kind: model.KindInsert, Payload: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.Append(model.Event{Timestamp: base, Kind: model.KindStop}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", data)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriterLatchesIOError(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.Append(model.Event{Timestamp: base, Kind: model.KindInsert, Payload: "a"})
	var ioErr *CaptureIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected CaptureIOError, got %v", err)
	}
	if err2 := w.Append(model.Event{Timestamp: base, Kind: model.KindInsert, Payload: "b"}); err2 != err {
		t.Fatalf("expected latched error, got %v", err2)
	}
}

func TestLoadFileArchived(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.log")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, ev := range sampleEvents() {
		if err := w.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	archived, err := archive.Archive(path, dir)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	events, err := LoadFile(archived)
	if err != nil {
		t.Fatalf("load archived: %v", err)
	}
	if len(events) != len(sampleEvents()) {
		t.Fatalf("expected %d events, got %d", len(sampleEvents()), len(events))
	}
}
