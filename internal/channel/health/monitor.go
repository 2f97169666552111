// Package health runs periodic liveness checks against a channel backend.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clawpanel/clawpanel/internal/channel/transport"
	"github.com/clawpanel/clawpanel/internal/logger"
)

// DefaultInterval is the check period when none is configured.
const DefaultInterval = 10 * time.Second

// Requester is the subset of transport.Client the monitor needs.
type Requester interface {
	Request(ctx context.Context, method, path string, body any) (transport.Response, error)
}

// Check describes one backend's liveness endpoint and how to read it.
type Check struct {
	Method string
	Path   string
	// Interpret maps a decoded reply to alive or not.
	Interpret func(transport.Response) bool
}

// Observation is the outcome of one check. IssuedAt is the time the request
// was sent, not when the reply arrived. Gen identifies the run that issued
// it; zero means the check ran outside a schedule.
type Observation struct {
	Live     bool
	IssuedAt time.Time
	Err      error
	Gen      uint64
}

// Observer receives every check outcome of the current run.
type Observer func(Observation)

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Monitor checks a backend on a constant schedule. At most one check is in
// flight; a tick that would overlap runs after the previous one finishes.
type Monitor struct {
	req     Requester
	check   Check
	observe Observer
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	gen     uint64
}

// NewMonitor creates a stopped monitor.
func NewMonitor(req Requester, check Check, observe Observer, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if check.Method == "" {
		check.Method = http.MethodGet
	}
	return &Monitor{
		req:     req,
		check:   check,
		observe: observe,
		opts:    opts,
		logger:  logger.Component(opts.Logger, "health").With(slog.String("path", check.Path)),
	}
}

// Start checks once immediately and then every interval. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.gen++
	gen := m.gen

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	cl := cronLogger{logger: m.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	job := cron.NewChain(cron.DelayIfStillRunning(cl)).Then(cron.FuncJob(func() {
		m.tick(runCtx, gen)
	}))
	c.Schedule(cron.Every(m.opts.Interval), job)
	c.Start()
	m.cron = c

	go job.Run()
}

// Stop cancels the schedule and any in-flight check. Results that arrive
// afterwards are dropped. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.gen++
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()

	cancel()
	<-c.Stop().Done()
}

// Running reports whether a schedule is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CheckOnce performs a single liveness check outside the schedule.
func (m *Monitor) CheckOnce(ctx context.Context) Observation {
	issued := m.opts.Now()
	resp, err := m.req.Request(ctx, m.check.Method, m.check.Path, nil)
	if err != nil {
		return Observation{Live: false, IssuedAt: issued, Err: err}
	}
	live := m.check.Interpret != nil && m.check.Interpret(resp)
	return Observation{Live: live, IssuedAt: issued}
}

func (m *Monitor) tick(ctx context.Context, gen uint64) {
	if !m.current(gen) {
		return
	}
	obs := m.CheckOnce(ctx)
	if !m.current(gen) {
		m.logger.Debug("dropping liveness result after stop", slog.Bool("live", obs.Live))
		return
	}
	if obs.Err != nil {
		m.logger.Debug("liveness check failed", slog.Any("error", obs.Err))
	}
	obs.Gen = gen
	if m.observe != nil {
		m.observe(obs)
	}
}

// Generation returns the id of the active run, or of the last one after Stop.
func (m *Monitor) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Current reports whether gen belongs to the active run. An observer that
// applies results under its own lock should re-check with it.
func (m *Monitor) Current(gen uint64) bool {
	return m.current(gen)
}

func (m *Monitor) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.gen == gen
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
