package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/clawpanel/clawpanel/internal/channel/health"
)

// SourceOptions tunes a Source.
type SourceOptions struct {
	HealthInterval time.Duration
	// SendRate is outbound messages per second; zero disables throttling.
	SendRate  float64
	SendBurst int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Source is the single event surface of one channel. It owns the health
// monitor, the connection state and the subscriber list.
type Source struct {
	backend Backend
	desc    Descriptor
	logger  *slog.Logger
	now     func() time.Time
	emitter *Emitter
	state   State
	monitor *health.Monitor
	limiter *rate.Limiter

	applyMu sync.Mutex

	mu      sync.Mutex
	running bool
	epoch   uint64
}

// NewSource wires a backend into a stopped Source.
func NewSource(backend Backend, opts SourceOptions) *Source {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	desc := backend.Descriptor()
	s := &Source{
		backend: backend,
		desc:    desc,
		logger:  opts.Logger.With(slog.String("channel", desc.Type.String())),
		now:     opts.Now,
		emitter: NewEmitter(),
	}
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}
	s.monitor = health.NewMonitor(backend.Requester(), backend.LivenessCheck(), s.observeLiveness, health.Options{
		Interval: opts.HealthInterval,
		Logger:   s.logger,
		Now:      opts.Now,
	})
	return s
}

// Type returns the channel type.
func (s *Source) Type() ChannelType { return s.desc.Type }

// Descriptor returns the backend descriptor.
func (s *Source) Descriptor() Descriptor { return s.desc }

// Backend exposes the adapter for optional capability checks.
func (s *Source) Backend() Backend { return s.backend }

// On subscribes to one event kind.
func (s *Source) On(kind EventKind, handler Handler) func() {
	return s.emitter.On(kind, handler)
}

// Emit publishes an event to subscribers as is.
func (s *Source) Emit(ev Event) {
	s.emitter.Emit(ev)
}

// Start begins health monitoring. Calling it again while running is a no-op.
func (s *Source) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.epoch++
	s.mu.Unlock()

	s.monitor.Start(ctx)
	s.logger.Info("channel source started", slog.Uint64("run", s.monitor.Generation()))
}

// Stop halts monitoring. In-flight liveness and login results are discarded.
// Subscriptions and the last known state are kept.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.epoch++
	s.mu.Unlock()

	s.monitor.Stop()
	s.logger.Info("channel source stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the connection state.
func (s *Source) Status() Status {
	st := s.state.Snapshot()
	st.Channel = s.desc.Type
	st.Running = s.Running()
	return st
}

// ResolveLogin queries the backend and folds a positive answer into the state.
// A result that arrives after Stop is returned but not applied.
func (s *Source) ResolveLogin(ctx context.Context) LoginResult {
	epoch, running := s.currentEpoch()
	issued := s.now()
	res := s.backend.ResolveLogin(ctx)
	if !res.LoggedIn || res.Identity == nil {
		return res
	}
	if !running {
		return res
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.sameEpoch(epoch) {
		s.logger.Debug("login result not applied, source stopped")
		return res
	}
	id := *res.Identity
	prev := s.state.Snapshot().Identity
	s.state.SetIdentity(id)
	s.setConnectedLocked(true, issued)
	if prev == nil || *prev != id {
		s.emitter.Emit(LoginEvent{Channel: s.desc.Type, Identity: id, At: issued})
	}
	return res
}

// HandleCallback normalizes an inbound webhook payload and applies it.
// It returns the emitted event, or false when the payload was discarded.
func (s *Source) HandleCallback(payload CallbackPayload) (Event, bool) {
	if !s.Running() {
		s.logger.Debug("callback ignored, source stopped")
		return nil, false
	}
	received := s.now()
	ev, ok := s.backend.Normalize(payload, received)
	if !ok {
		return nil, false
	}
	ev = s.stamp(ev, received)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	switch e := ev.(type) {
	case SystemEvent:
		switch e.Subtype {
		case SystemLogin:
			if e.DisplayName != "" {
				s.state.SetIdentity(Identity{DisplayName: e.DisplayName})
			}
			s.setConnectedLocked(true, received)
			s.emitter.Emit(LoginEvent{Channel: s.desc.Type, Identity: Identity{DisplayName: e.DisplayName}, At: received})
		case SystemLogout:
			s.setConnectedLocked(false, received)
		}
		s.emitter.Emit(e)
	default:
		s.emitter.Emit(ev)
	}
	return ev, true
}

// Send delivers an outbound message, waiting for the rate limiter first.
func (s *Source) Send(ctx context.Context, req SendRequest) SendResult {
	if req.Kind == "" {
		req.Kind = SendText
	}
	if req.To == "" {
		return SendFailure("recipient is required", nil)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return SendFailure("rate limited: "+err.Error(), nil)
		}
	}
	res := s.backend.Send(ctx, req)
	if !res.OK {
		s.logger.Warn("send failed", slog.String("to", req.To), slog.String("error", res.Error))
		return res
	}
	s.emitter.Emit(SystemEvent{
		Channel:     s.desc.Type,
		ID:          uuid.NewString(),
		Subtype:     SystemOutbound,
		Type:        string(req.Kind),
		Content:     req.Content,
		DisplayName: req.To,
		At:          s.now(),
	})
	return res
}

func (s *Source) observeLiveness(obs health.Observation) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.Running() || !s.monitor.Current(obs.Gen) {
		s.logger.Debug("liveness result not applied, source stopped")
		return
	}
	s.setConnectedLocked(obs.Live, obs.IssuedAt)
}

// setConnectedLocked must be called with applyMu held.
func (s *Source) setConnectedLocked(v bool, at time.Time) {
	if !s.state.SetConnected(v, at) {
		return
	}
	if v {
		s.logger.Info("channel connected")
		s.emitter.Emit(ConnectEvent{Channel: s.desc.Type, At: at})
		return
	}
	s.logger.Info("channel disconnected")
	s.emitter.Emit(DisconnectEvent{Channel: s.desc.Type, At: at})
}

func (s *Source) stamp(ev Event, at time.Time) Event {
	switch e := ev.(type) {
	case MessageEvent:
		e.Channel = s.desc.Type
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = at
		}
		return e
	case SystemEvent:
		e.Channel = s.desc.Type
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = at
		}
		return e
	}
	return ev
}

func (s *Source) currentEpoch() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.running
}

func (s *Source) sameEpoch(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.epoch == epoch
}
