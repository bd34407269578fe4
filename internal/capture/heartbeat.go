package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/verte-zerg/keytrace/internal/model"
)

// DefaultHeartbeatInterval is the spacing between liveness markers.
const DefaultHeartbeatInterval = 120 * time.Second

// Syncer is implemented by sinks that can flush to stable storage.
type Syncer interface {
	Sync() error
}

// HeartbeatOptions configure a Heartbeat.
type HeartbeatOptions struct {
	// Ticks overrides the internal ticker; used by tests.
	Ticks   <-chan time.Time
	Syncer  Syncer
	OnError func(error)
}

// Heartbeat periodically flushes the coalescer and appends a HEARTBEAT marker.
type Heartbeat struct {
	interval  time.Duration
	coalescer *Coalescer
	ticks     <-chan time.Time
	syncer    Syncer
	onError   func(error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	emitted int
}

// NewHeartbeat validates the interval and returns a stopped heartbeat.
func NewHeartbeat(interval time.Duration, coalescer *Coalescer, opts HeartbeatOptions) (*Heartbeat, error) {
	if interval <= 0 {
		return nil, errors.New("heartbeat interval must be positive")
	}
	if coalescer == nil {
		return nil, errors.New("heartbeat requires a coalescer")
	}
	return &Heartbeat{
		interval:  interval,
		coalescer: coalescer,
		ticks:     opts.Ticks,
		syncer:    opts.Syncer,
		onError:   opts.OnError,
	}, nil
}

// Start launches the heartbeat goroutine. Calling Start twice is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	ticks := h.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(h.interval)
		ticks = ticker.C
	}
	go func() {
		defer close(h.done)
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				if err := h.beat(); err != nil {
					if h.onError != nil {
						h.onError(err)
					}
					return
				}
			}
		}
	}()
}

// Stop cancels the heartbeat and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Emitted returns the number of heartbeats written.
func (h *Heartbeat) Emitted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.emitted
}

func (h *Heartbeat) beat() error {
	if err := h.coalescer.Mark(model.KindHeartbeat); err != nil {
		return err
	}
	h.mu.Lock()
	h.emitted++
	h.mu.Unlock()
	if h.syncer != nil {
		return h.syncer.Sync()
	}
	return nil
}
