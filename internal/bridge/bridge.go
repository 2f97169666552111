// Package bridge relays channel events to observer sessions over WebSocket.
package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/logger"
	"github.com/clawpanel/clawpanel/internal/ringbuf"
)

// Limits and defaults for Options.
const (
	MaxReplayCapacity        = 200
	DefaultSessionBuffer     = 256
	MinReconcileInterval     = 8 * time.Second
	MaxReconcileInterval     = 10 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	defaultReadLimit         = 4096
	pongWaitFactor           = 2
	defaultReconcileInterval = MinReconcileInterval
)

// Options bounds the bridge.
type Options struct {
	// ReplayCapacity is clamped to [1, MaxReplayCapacity]; zero means the maximum.
	ReplayCapacity int
	// SessionBuffer caps queued frames per session; extra frames are dropped.
	SessionBuffer int
	// ReconcileInterval is clamped to [MinReconcileInterval, MaxReconcileInterval].
	ReconcileInterval time.Duration
	PingInterval      time.Duration
	WriteTimeout      time.Duration
}

func (o Options) normalized() Options {
	if o.ReplayCapacity <= 0 || o.ReplayCapacity > MaxReplayCapacity {
		o.ReplayCapacity = MaxReplayCapacity
	}
	if o.SessionBuffer <= 0 {
		o.SessionBuffer = DefaultSessionBuffer
	}
	switch {
	case o.ReconcileInterval <= 0:
		o.ReconcileInterval = defaultReconcileInterval
	case o.ReconcileInterval < MinReconcileInterval:
		o.ReconcileInterval = MinReconcileInterval
	case o.ReconcileInterval > MaxReconcileInterval:
		o.ReconcileInterval = MaxReconcileInterval
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Bridge subscribes once to every source and fans frames out to sessions.
// It lives for the whole process; sessions come and go.
type Bridge struct {
	manager *channel.Manager
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	ring     *ringbuf.Ring[Frame]
	sessions map[string]chan Frame
	unsubs   []func()
	started  bool

	dropped atomic.Uint64
}

// New creates a stopped bridge over the manager's sources.
func New(log *slog.Logger, manager *channel.Manager, opts Options) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.normalized()
	return &Bridge{
		manager:  manager,
		opts:     opts,
		logger:   logger.Component(log, "bridge"),
		ring:     ringbuf.New[Frame](opts.ReplayCapacity),
		sessions: map[string]chan Frame{},
	}
}

// Start subscribes to every event kind of every source. Calling it twice is a no-op.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	for _, src := range b.manager.Sources() {
		for _, kind := range channel.EventKinds {
			b.unsubs = append(b.unsubs, src.On(kind, func(ev channel.Event) {
				b.forward(src, ev)
			}))
		}
	}
}

// Stop unsubscribes from sources and ends every session.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.started = false
	for id, ch := range b.sessions {
		delete(b.sessions, id)
		close(ch)
	}
	b.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// Subscribe registers a session. replay holds the buffered event frames,
// oldest first; every later frame arrives on the channel exactly once.
func (b *Bridge) Subscribe() (id string, replay []Frame, frames <-chan Frame, cancel func()) {
	id = uuid.NewString()
	ch := make(chan Frame, b.opts.SessionBuffer)

	b.mu.Lock()
	replay = b.ring.Snapshot()
	b.sessions[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			if current, ok := b.sessions[id]; ok {
				delete(b.sessions, id)
				close(current)
			}
			b.mu.Unlock()
		})
	}
	return id, replay, ch, cancel
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Sessions       int    `json:"sessions"`
	Buffered       int    `json:"buffered"`
	ReplayCapacity int    `json:"replay_capacity"`
	Dropped        uint64 `json:"dropped"`
}

// Stats reports attached sessions and replay ring occupancy.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Sessions:       len(b.sessions),
		Buffered:       b.ring.Len(),
		ReplayCapacity: b.ring.Cap(),
		Dropped:        b.dropped.Load(),
	}
}

// StatusFrames encodes the current status of every source.
func (b *Bridge) StatusFrames() []Frame {
	sources := b.manager.Sources()
	out := make([]Frame, 0, len(sources))
	for _, src := range sources {
		frame, err := encode(src.Descriptor().StatusTopic, src.Status())
		if err != nil {
			b.logger.Warn("encode status frame failed", slog.Any("error", err))
			continue
		}
		out = append(out, frame)
	}
	return out
}

func (b *Bridge) forward(src *channel.Source, ev channel.Event) {
	desc := src.Descriptor()
	switch ev.Kind() {
	case channel.EventMessage, channel.EventSystem:
		view, ok := NewEventView(ev)
		if !ok {
			return
		}
		frame, err := encode(desc.EventTopic, view)
		if err != nil {
			b.logger.Warn("encode event frame failed", slog.Any("error", err))
			return
		}
		b.mu.Lock()
		b.ring.Push(frame)
		b.fanOutLocked(frame)
		b.mu.Unlock()
	default:
		frame, err := encode(desc.StatusTopic, src.Status())
		if err != nil {
			b.logger.Warn("encode status frame failed", slog.Any("error", err))
			return
		}
		b.mu.Lock()
		b.fanOutLocked(frame)
		b.mu.Unlock()
	}
}

func (b *Bridge) fanOutLocked(frame Frame) {
	for id, ch := range b.sessions {
		select {
		case ch <- frame:
		default:
			b.dropped.Add(1)
			b.logger.Debug("session queue full, frame dropped", slog.String("session", id))
		}
	}
}
