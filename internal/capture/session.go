package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/keytrace/internal/eventlog"
	"github.com/verte-zerg/keytrace/internal/model"
)

const (
	defaultQueueSize = 256
	logExt           = ".log"
)

// Options configure a capture session.
type Options struct {
	Name              string
	Dir               string
	HeartbeatInterval time.Duration
	Hotkeys           map[string]string
	Clock             func() time.Time
	Logger            *slog.Logger
	// Sink replaces the on-disk log; it is closed on teardown when it implements io.Closer.
	Sink      Appender
	Ticks     <-chan time.Time
	QueueSize int
}

// Stats is a point-in-time view of a running session.
type Stats struct {
	Keys     int64
	Commands int64
	Written  int64
	Pending  int
}

// Session owns every resource of one capture: the sink, the coalescer,
// the heartbeat and the producer goroutines feeding them.
type Session struct {
	name      string
	path      string
	startedAt time.Time
	logger    *slog.Logger

	sink      Appender
	coalescer *Coalescer
	heartbeat *Heartbeat
	hotkeys   map[string]string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	stopped   bool
	keys      chan string
	commands  chan string
	producers sync.WaitGroup

	keyCount     atomic.Int64
	commandCount atomic.Int64
	written      atomic.Int64

	errOnce sync.Once
	errMu   sync.Mutex
	err     error

	teardownOnce sync.Once
	teardownErr  error
}

// Start validates options, opens the log and launches the producers and heartbeat.
func Start(ctx context.Context, opts Options) (*Session, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, &ConfigurationError{Field: "session name", Reason: "a session name is required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := opts.HeartbeatInterval
	if interval == 0 {
		interval = DefaultHeartbeatInterval
	}
	if interval < 0 {
		return nil, &ConfigurationError{Field: "heartbeat interval", Reason: "must be positive"}
	}
	hotkeys := opts.Hotkeys
	if hotkeys == nil {
		hotkeys = DefaultHotkeys()
	}
	hotkeys = NormalizeHotkeys(hotkeys)
	for _, combo := range UnreachableHotkeys(hotkeys) {
		alias, _ := TerminalAlias(combo)
		logger.Warn("hotkey ignored, terminal sends it as another key", "combo", combo, "key", alias)
		delete(hotkeys, combo)
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}

	sink := opts.Sink
	path := ""
	if sink == nil {
		path = LogPath(opts.Dir, name)
		w, err := eventlog.Create(path)
		if err != nil {
			return nil, err
		}
		sink = w
	}

	s := &Session{
		name:      name,
		path:      path,
		startedAt: clock(),
		logger:    logger,
		sink:      sink,
		hotkeys:   hotkeys,
		keys:      make(chan string, queue),
		commands:  make(chan string, queue),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.coalescer = NewCoalescer(countingAppender{sink: sink, n: &s.written}, clock)

	syncer, _ := sink.(Syncer)
	hb, err := NewHeartbeat(interval, s.coalescer, HeartbeatOptions{
		Ticks:   opts.Ticks,
		Syncer:  syncer,
		OnError: s.fail,
	})
	if err != nil {
		s.cancel()
		closeSink(sink)
		return nil, &ConfigurationError{Field: "heartbeat interval", Reason: err.Error()}
	}
	s.heartbeat = hb

	s.producers.Add(2)
	go s.runHook()
	go s.runHotkeys()
	s.heartbeat.Start(s.ctx)

	logger.Info("capture session started", "name", name, "path", path, "heartbeat", interval)
	return s, nil
}

// LogPath returns the log file path for a session name inside dir.
func LogPath(dir, name string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	return filepath.Join(dir, clean+logExt)
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Path returns the log path, or "" when a custom sink is used.
func (s *Session) Path() string {
	return s.path
}

// StartedAt returns when the session was opened.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Done is closed when the session fails or is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns the first fatal error, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Key submits one key-down by name. It reports false once the session no longer accepts input.
func (s *Session) Key(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped || s.Err() != nil {
		return false
	}
	s.keyCount.Add(1)
	s.keys <- name
	if cmd, ok := s.hotkeys[strings.ToLower(name)]; ok {
		s.commandCount.Add(1)
		s.commands <- cmd
	}
	return true
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	return Stats{
		Keys:     s.keyCount.Load(),
		Commands: s.commandCount.Load(),
		Written:  s.written.Load(),
		Pending:  s.coalescer.Pending(),
	}
}

// Stop ends the session on the operator's stop signal: buffered deletions are
// flushed, a STOP marker is appended and the sink is closed.
func (s *Session) Stop() error {
	return s.teardown(true)
}

// Close tears the session down without a STOP marker. It is safe to defer
// alongside Stop; only the first teardown has an effect.
func (s *Session) Close() error {
	return s.teardown(false)
}

func (s *Session) teardown(stop bool) error {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.keys)
		close(s.commands)
		s.mu.Unlock()

		s.producers.Wait()
		s.heartbeat.Stop()

		if s.Err() == nil {
			var err error
			if stop {
				err = s.coalescer.Mark(model.KindStop)
			} else {
				err = s.coalescer.Flush()
			}
			if err != nil {
				s.fail(err)
			}
		}
		closeErr := closeSink(s.sink)
		s.cancel()

		s.teardownErr = errors.Join(s.Err(), closeErr)
		stats := s.Stats()
		s.logger.Info("capture session closed", "name", s.name, "stopped", stop, "keys", stats.Keys, "written", stats.Written, "error", s.teardownErr)
	})
	return s.teardownErr
}

func (s *Session) runHook() {
	defer s.producers.Done()
	for name := range s.keys {
		if s.Err() != nil {
			continue
		}
		if err := s.coalescer.Record(ClassifyKey(name)); err != nil {
			s.fail(err)
		}
	}
}

func (s *Session) runHotkeys() {
	defer s.producers.Done()
	for cmd := range s.commands {
		if s.Err() != nil {
			continue
		}
		if err := s.coalescer.Record(model.Event{Kind: model.KindCommand, Payload: cmd}); err != nil {
			s.fail(err)
		}
	}
}

func (s *Session) fail(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.errMu.Lock()
		s.err = fmt.Errorf("capture session %q: %w", s.name, err)
		s.errMu.Unlock()
		s.logger.Error("capture session failed", "name", s.name, "error", err)
		s.cancel()
	})
}

func closeSink(sink Appender) error {
	closer, ok := sink.(io.Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}

type countingAppender struct {
	sink Appender
	n    *atomic.Int64
}

func (c countingAppender) Append(ev model.Event) error {
	if err := c.sink.Append(ev); err != nil {
		return err
	}
	c.n.Add(1)
	return nil
}
