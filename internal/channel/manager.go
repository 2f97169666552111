package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/clawpanel/clawpanel/internal/logger"
)

// Manager owns every configured Source for the lifetime of the process.
type Manager struct {
	mu      sync.RWMutex
	sources map[ChannelType]*Source
	order   []ChannelType
	logger  *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sources: map[ChannelType]*Source{},
		logger:  logger.Component(log, "channel"),
	}
}

// Register adds a source. Each channel type may be registered once.
func (m *Manager) Register(src *Source) error {
	if src == nil {
		return errors.New("source is nil")
	}
	ct := NormalizeType(src.Type().String())
	if ct == "" {
		return errors.New("channel type is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sources[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	m.sources[ct] = src
	m.order = append(m.order, ct)
	return nil
}

// MustRegister calls Register and panics on error.
func (m *Manager) MustRegister(src *Source) {
	if err := m.Register(src); err != nil {
		panic(err)
	}
}

// Get returns the source for a channel type.
func (m *Manager) Get(channelType ChannelType) (*Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[NormalizeType(channelType.String())]
	return src, ok
}

// Sources returns every source in registration order.
func (m *Manager) Sources() []*Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Source, 0, len(m.order))
	for _, ct := range m.order {
		out = append(out, m.sources[ct])
	}
	return out
}

// Start starts every source.
func (m *Manager) Start(ctx context.Context) {
	for _, src := range m.Sources() {
		src.Start(ctx)
	}
	m.logger.Info("channel manager started", slog.Int("sources", len(m.order)))
}

// Stop stops every source.
func (m *Manager) Stop() {
	for _, src := range m.Sources() {
		src.Stop()
	}
}

// Snapshot returns the status of every source.
func (m *Manager) Snapshot() []Status {
	sources := m.Sources()
	out := make([]Status, 0, len(sources))
	for _, src := range sources {
		out = append(out, src.Status())
	}
	return out
}
