package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/keytrace/internal/archive"
	"github.com/verte-zerg/keytrace/internal/model"
)

const maxLineSize = 1 << 20

// Load replays a log stream into events in append order.
func Load(r io.Reader) ([]model.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var events []model.Event
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, err := ParseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrEmptyLog
	}
	return events, nil
}

// LoadFile replays the log at path. Archived .zst logs are decompressed on the fly.
func LoadFile(path string) ([]model.Event, error) {
	rc, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			// Best-effort close for read-only log.
			_ = cerr
		}
	}()
	events, err := Load(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}
