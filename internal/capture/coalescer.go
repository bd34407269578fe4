// Package capture records keystrokes into the event log.
package capture

import (
	"strconv"
	"sync"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

// Appender is the durable side of the capture pipeline.
type Appender interface {
	Append(ev model.Event) error
}

// Coalescer merges consecutive deletions into a single DEL event.
// Every decision to buffer, flush, or append happens under one mutex,
// and events are stamped inside it so the log stays time-ordered.
type Coalescer struct {
	mu    sync.Mutex
	sink  Appender
	clock func() time.Time

	pending int
	start   time.Time
}

// NewCoalescer returns a coalescer writing to sink.
func NewCoalescer(sink Appender, clock func() time.Time) *Coalescer {
	if clock == nil {
		clock = time.Now
	}
	return &Coalescer{sink: sink, clock: clock}
}

// Record handles one raw key event. Deletions are buffered; anything else
// flushes the buffer first and is then appended.
func (c *Coalescer) Record(ev model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	if IsDeletion(ev) {
		if c.pending == 0 {
			c.start = ev.Timestamp
		}
		c.pending++
		return nil
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	return c.sink.Append(ev)
}

// Flush writes any buffered deletions as one DEL event.
func (c *Coalescer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Mark flushes and appends a payload-less marker such as HEARTBEAT or STOP.
func (c *Coalescer) Mark(kind model.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	return c.sink.Append(model.Event{Timestamp: c.now(), Kind: kind})
}

// Pending returns the number of buffered deletions.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coalescer) flushLocked() error {
	if c.pending == 0 {
		return nil
	}
	ev := model.Event{
		Timestamp: c.start,
		Kind:      model.KindDeleteRun,
		Payload:   strconv.Itoa(c.pending),
	}
	c.pending = 0
	c.start = time.Time{}
	return c.sink.Append(ev)
}

func (c *Coalescer) now() time.Time {
	return c.clock().Truncate(time.Microsecond)
}
