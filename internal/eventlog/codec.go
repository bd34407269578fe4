// Package eventlog encodes, writes, and replays the pipe-delimited capture log.
package eventlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

// TimestampLayout is the on-disk timestamp format.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

const separator = "|"

// Offset-less layouts are read in local time.
var parseLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// FormatLine renders an event as one log line without the trailing newline.
func FormatLine(ev model.Event) string {
	payload := ev.Payload
	if ev.Kind.Marker() {
		payload = ""
	}
	var b strings.Builder
	b.Grow(len(TimestampLayout) + len(ev.Kind) + len(payload) + 2)
	b.WriteString(ev.Timestamp.Format(TimestampLayout))
	b.WriteString(separator)
	b.WriteString(string(ev.Kind))
	b.WriteString(separator)
	b.WriteString(payload)
	return b.String()
}

// ParseLine decodes one log line. lineNo is used for error reporting only.
func ParseLine(line string, lineNo int) (model.Event, error) {
	parts := strings.SplitN(line, separator, 3)
	if len(parts) < 2 || parts[1] == "" {
		return model.Event{}, &MalformedLogError{Line: lineNo, Text: line, Reason: "missing kind"}
	}
	ts, err := parseTimestamp(parts[0])
	if err != nil {
		return model.Event{}, &MalformedLogError{Line: lineNo, Text: line, Reason: "bad timestamp"}
	}
	kind := model.Kind(parts[1])
	if !kind.Valid() {
		return model.Event{}, &MalformedLogError{Line: lineNo, Text: line, Reason: fmt.Sprintf("unknown kind %q", parts[1])}
	}
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}
	if kind == model.KindDeleteRun {
		n, err := strconv.Atoi(payload)
		if err != nil || n < 1 {
			return model.Event{}, &MalformedLogError{Line: lineNo, Text: line, Reason: "delete run must be a positive integer"}
		}
	}
	return model.Event{Timestamp: ts, Kind: kind, Payload: payload}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range parseLayouts {
		ts, err := time.ParseInLocation(layout, value, time.Local)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
