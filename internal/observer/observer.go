// Package observer is the client side of the observer WebSocket. It keeps a
// bounded activity log and the last known status of every channel.
package observer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/logger"
	"github.com/clawpanel/clawpanel/internal/ringbuf"
)

// Defaults for Options.
const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultReconcileInterval = 8 * time.Second
	DefaultLogCapacity       = 200
	defaultReadLimit         = 1 << 20
)

// ErrUnauthorized is returned when the panel rejects the token.
var ErrUnauthorized = errors.New("observer: token rejected")

// Source labels the origin of a log entry.
type Source string

const (
	SourceQQ        Source = "qq"
	SourceWeChat    Source = "wechat"
	SourceAssistant Source = "assistant"
	SourceSystem    Source = "system"
)

// LogEntry is one line of the activity log.
type LogEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Source  Source    `json:"source"`
	Summary string    `json:"summary"`
	Detail  string    `json:"detail,omitempty"`
}

// ChannelStatus is the last status seen for one channel.
type ChannelStatus struct {
	Running    bool              `json:"running"`
	Connected  bool              `json:"connected"`
	Identity   *channel.Identity `json:"identity,omitempty"`
	ObservedAt time.Time         `json:"observed_at"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the panel's HTTP address, e.g. http://127.0.0.1:8080.
	BaseURL string
	// Token is the JWT used for the WebSocket query and the status poll.
	Token string
	// RefreshToken, when set, is asked for a new token after the panel
	// answers 401. Without it a rejected token is retried as is.
	RefreshToken      func(ctx context.Context) (string, error)
	ReconnectDelay    time.Duration
	ReconcileInterval time.Duration
	LogCapacity       int
	HTTPClient        *http.Client
	Logger            *slog.Logger

	// OnEntry and OnStatus are called outside the client lock.
	OnEntry  func(LogEntry)
	OnStatus func(name string, status ChannelStatus)
}

// Client follows the observer stream and reconnects after a fixed delay.
type Client struct {
	base   *url.URL
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	refreshMu sync.Mutex

	mu       sync.Mutex
	token    string
	entries  *ringbuf.Ring[LogEntry]
	seen     map[string]struct{}
	statuses map[string]ChannelStatus
}

// New validates opts and creates a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultReconcileInterval
	}
	if opts.LogCapacity <= 0 || opts.LogCapacity > DefaultLogCapacity {
		opts.LogCapacity = DefaultLogCapacity
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:     base,
		opts:     opts,
		logger:   logger.Component(log, "observer"),
		now:      time.Now,
		token:    opts.Token,
		entries:  ringbuf.New[LogEntry](opts.LogCapacity),
		seen:     map[string]struct{}{},
		statuses: map[string]ChannelStatus{},
	}, nil
}

// Run follows the stream until ctx ends. After a disconnect it waits
// ReconnectDelay before subscribing again. Status is polled alongside.
func (c *Client) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pollLoop(ctx)
	}()
	defer wg.Wait()

	for {
		token := c.currentToken()
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			c.refreshToken(ctx, token)
		}
		c.logger.Warn("observer stream ended", slog.Any("error", err),
			slog.Duration("retry_in", c.opts.ReconnectDelay))
		c.record(LogEntry{
			Time:    c.now(),
			Source:  SourceSystem,
			Summary: "observer disconnected, resubscribing",
			Detail:  errString(err),
		})

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Entries returns the activity log, oldest first.
func (c *Client) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Snapshot()
}

// Statuses returns the last known status per channel.
func (c *Client) Statuses() map[string]ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ChannelStatus, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// StreamURL is the WebSocket address with the token in the query.
func (c *Client) StreamURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	if token := c.currentToken(); token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) stream(ctx context.Context) error {
	conn, resp, err := websocket.Dial(ctx, c.StreamURL(), &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("dial observer: %w", ErrUnauthorized)
		}
		return fmt.Errorf("dial observer: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(defaultReadLimit)

	c.logger.Info("observer attached", slog.String("url", c.base.String()))
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		c.HandleFrame(data)
	}
}

// HandleFrame applies one observer frame.
func (c *Client) HandleFrame(data []byte) {
	if !gjson.ValidBytes(data) {
		c.logger.Debug("invalid observer frame", slog.Int("bytes", len(data)))
		return
	}
	frame := gjson.ParseBytes(data)
	topic := frame.Get("type").String()
	body := frame.Get("data")
	if strings.HasSuffix(topic, "-status") {
		name := body.Get("channel").String()
		if name == "" {
			name = strings.TrimSuffix(topic, "-status")
		}
		c.applyStatus(name, statusFromJSON(body))
		return
	}
	if topic == "event" || strings.HasSuffix(topic, "-event") {
		if entry, ok := entryFromEvent(body); ok {
			c.record(entry)
		}
		return
	}
	c.logger.Debug("unknown observer frame", slog.String("type", topic))
}

// PollStatus fetches GET /api/status once and applies every channel in it.
func (c *Client) PollStatus(ctx context.Context) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("poll status: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("poll status: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll status: unexpected status %d", resp.StatusCode)
	}
	result := gjson.ParseBytes(raw)
	if !result.IsObject() {
		return errors.New("poll status: body is not an object")
	}
	result.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() && value.Get("connected").Exists() {
			c.applyStatus(key.String(), statusFromJSON(value))
		}
		return true
	})
	return nil
}

// pollLoop hydrates status right away and then on every interval.
func (c *Client) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ReconcileInterval)
	defer ticker.Stop()
	for {
		token := c.currentToken()
		err := c.PollStatus(ctx)
		if errors.Is(err, ErrUnauthorized) {
			c.refreshToken(ctx, token)
		} else if err != nil && ctx.Err() == nil {
			c.logger.Debug("status poll failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// refreshToken replaces rejected with a token from RefreshToken. The stream
// and the poll can be rejected together; whoever comes second finds the
// token already changed and returns.
func (c *Client) refreshToken(ctx context.Context, rejected string) {
	if c.opts.RefreshToken == nil {
		c.logger.Warn("observer token rejected and no refresh configured")
		return
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.currentToken() != rejected {
		return
	}
	token, err := c.opts.RefreshToken(ctx)
	if err != nil {
		c.logger.Warn("observer token refresh failed", slog.Any("error", err))
		return
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.logger.Info("observer token refreshed")
}

func (c *Client) applyStatus(name string, next ChannelStatus) {
	if name == "" {
		return
	}
	c.mu.Lock()
	prev, known := c.statuses[name]
	if known && next.ObservedAt.Before(prev.ObservedAt) {
		c.mu.Unlock()
		return
	}
	c.statuses[name] = next
	c.mu.Unlock()

	if c.opts.OnStatus != nil {
		c.opts.OnStatus(name, next)
	}
	if known && prev.Connected == next.Connected {
		return
	}
	if !known && !next.Connected {
		return
	}
	summary := name + " disconnected"
	if next.Connected {
		summary = name + " connected"
		if next.Identity != nil && next.Identity.DisplayName != "" {
			summary += " as " + next.Identity.DisplayName
		}
	}
	c.record(LogEntry{Time: c.now(), Source: SourceSystem, Summary: summary})
}

// record appends entry unless an entry with the same ID is already held.
// Replays after a reconnect therefore do not duplicate lines.
func (c *Client) record(entry LogEntry) {
	c.mu.Lock()
	if entry.ID != "" {
		if _, dup := c.seen[entry.ID]; dup {
			c.mu.Unlock()
			return
		}
		c.seen[entry.ID] = struct{}{}
	}
	if evicted, ok := c.entries.Push(entry); ok && evicted.ID != "" {
		delete(c.seen, evicted.ID)
	}
	c.mu.Unlock()

	if c.opts.OnEntry != nil {
		c.opts.OnEntry(entry)
	}
}

func statusFromJSON(v gjson.Result) ChannelStatus {
	st := ChannelStatus{
		Running:   v.Get("running").Bool(),
		Connected: v.Get("connected").Bool(),
	}
	if id := v.Get("identity"); id.IsObject() {
		st.Identity = &channel.Identity{
			DisplayName: id.Get("display_name").String(),
			ExternalID:  id.Get("external_id").String(),
		}
	}
	if ts := v.Get("observed_at").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			st.ObservedAt = t
		}
	}
	return st
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
