package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/verte-zerg/keytrace/internal/model"
)

// Writer is the append-only capture sink shared by all producers.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File
	path   string
	count  int
	closed bool
	err    error
}

// Create opens path for appending, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return &Writer{w: file, file: file, path: path}, nil
}

// NewWriter wraps an arbitrary writer. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Path returns the backing file path, if any.
func (s *Writer) Path() string {
	return s.path
}

// Append writes ev as a single line with one Write call.
func (s *Writer) Append(ev model.Event) error {
	line := FormatLine(ev) + "\n"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return ErrSinkClosed
	}
	if _, err := io.WriteString(s.w, line); err != nil {
		s.err = &CaptureIOError{Op: "append", Err: err}
		return s.err
	}
	s.count++
	return nil
}

// Sync flushes the file to stable storage. It is a no-op for non-file writers.
func (s *Writer) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.err = &CaptureIOError{Op: "sync", Err: err}
		return s.err
	}
	return nil
}

// Count returns the number of lines written.
func (s *Writer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close closes the sink. Only the first call has an effect.
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return &CaptureIOError{Op: "close", Err: err}
	}
	return nil
}
