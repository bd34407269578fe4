package eventlog

import (
	"errors"
	"fmt"
)

// ErrEmptyLog indicates a log source that yielded no events.
var ErrEmptyLog = errors.New("log contains no events")

// ErrSinkClosed is returned by Append after Close.
var ErrSinkClosed = errors.New("event sink is closed")

// MalformedLogError reports a line that cannot be decoded into an event.
type MalformedLogError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed log line %d (%s): %q", e.Line, e.Reason, e.Text)
}

// CaptureIOError wraps a failed durable write. It is fatal to a capture session.
type CaptureIOError struct {
	Op  string
	Err error
}

func (e *CaptureIOError) Error() string {
	return fmt.Sprintf("capture %s failed: %v", e.Op, e.Err)
}

func (e *CaptureIOError) Unwrap() error {
	return e.Err
}
