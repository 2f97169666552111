package observer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.BaseURL == "" {
		opts.BaseURL = "http://127.0.0.1:1"
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func eventFrame(topic, id, data string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"data":{"id":%q,"time":1700000000000,%s}}`, topic, id, data))
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const statusBody = `{"ok":true,"wechat":{"connected":true,"running":true,"identity":{"display_name":"Alice"},"observed_at":"2026-01-01T00:00:00Z"},"qq":{"connected":false,"running":true}}`

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{BaseURL: "ftp://example.com"}); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
	if _, err := New(Options{BaseURL: "://bad"}); err == nil {
		t.Fatal("expected error for unparsable url")
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	c := newClient(t, Options{BaseURL: "https://panel.example.com/base/", Token: "jwt"})
	if got, want := c.StreamURL(), "wss://panel.example.com/base/ws?token=jwt"; got != want {
		t.Fatalf("StreamURL() = %q, want %q", got, want)
	}

	c = newClient(t, Options{BaseURL: "http://127.0.0.1:8080"})
	if got, want := c.StreamURL(), "ws://127.0.0.1:8080/ws"; got != want {
		t.Fatalf("StreamURL() = %q, want %q", got, want)
	}
}

func TestHandleFrameMapsEvents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		frame   []byte
		source  Source
		summary string
	}{
		{
			name:    "qq group message",
			frame:   eventFrame("event", "1", `"channel":"qq","kind":"message","message":{"type":"text","text":"hi  there","sender_name":"Bob","is_group":true,"group_name":"Team","is_mention":true}`),
			source:  SourceQQ,
			summary: "[Team] Bob (@): hi there",
		},
		{
			name:    "wechat private message",
			frame:   eventFrame("wechat-event", "2", `"channel":"wechat","kind":"message","message":{"type":"text","text":"hello","sender_name":"Alice"}`),
			source:  SourceWeChat,
			summary: "Alice: hello",
		},
		{
			name:    "outbound send",
			frame:   eventFrame("wechat-event", "3", `"channel":"wechat","kind":"system","system":{"subtype":"outbound","type":"text","content":"pong","display_name":"Alice"}`),
			source:  SourceAssistant,
			summary: "-> Alice: pong",
		},
		{
			name:    "login",
			frame:   eventFrame("wechat-event", "4", `"channel":"wechat","kind":"system","system":{"subtype":"login","type":"system_event_login","display_name":"Alice"}`),
			source:  SourceSystem,
			summary: "wechat logged in as Alice",
		},
		{
			name:    "generic notice",
			frame:   eventFrame("event", "5", `"channel":"qq","kind":"system","system":{"subtype":"generic","type":"notice","content":"group_increase"}`),
			source:  SourceQQ,
			summary: "qq notice: group_increase",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newClient(t, Options{})
			c.HandleFrame(tc.frame)
			entries := c.Entries()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			e := entries[0]
			if e.Source != tc.source {
				t.Fatalf("source = %q, want %q", e.Source, tc.source)
			}
			if e.Summary != tc.summary {
				t.Fatalf("summary = %q, want %q", e.Summary, tc.summary)
			}
			if e.Time.UnixMilli() != 1700000000000 {
				t.Fatalf("time = %v", e.Time)
			}
		})
	}
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	t.Parallel()

	c := newClient(t, Options{})
	c.HandleFrame([]byte("not json"))
	c.HandleFrame([]byte(`{"type":"unknown","data":{}}`))
	c.HandleFrame([]byte(`{"type":"event","data":{"kind":"connect"}}`))
	if n := len(c.Entries()); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
}

func TestEntriesAreBoundedAndDeduplicated(t *testing.T) {
	t.Parallel()

	msg := `"channel":"qq","kind":"message","message":{"text":"x","sender_name":"Bob"}`
	c := newClient(t, Options{})
	for i := 0; i < 250; i++ {
		c.HandleFrame(eventFrame("event", fmt.Sprintf("m-%d", i), msg))
	}
	// A replay after reconnect repeats the newest IDs.
	for i := 100; i < 250; i++ {
		c.HandleFrame(eventFrame("event", fmt.Sprintf("m-%d", i), msg))
	}
	entries := c.Entries()
	if len(entries) != DefaultLogCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultLogCapacity, len(entries))
	}
	if entries[0].ID != "m-50" || entries[len(entries)-1].ID != "m-249" {
		t.Fatalf("window = %s..%s", entries[0].ID, entries[len(entries)-1].ID)
	}

	// Evicted IDs may be recorded again.
	c.HandleFrame(eventFrame("event", "m-0", msg))
	entries = c.Entries()
	if last := entries[len(entries)-1].ID; last != "m-0" {
		t.Fatalf("last = %s", last)
	}
}

func TestStatusFramesLogTransitionsOnly(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var updates []string
	c := newClient(t, Options{OnStatus: func(name string, st ChannelStatus) {
		mu.Lock()
		updates = append(updates, fmt.Sprintf("%s:%v", name, st.Connected))
		mu.Unlock()
	}})

	c.HandleFrame([]byte(`{"type":"qq-status","data":{"channel":"qq","running":true,"connected":false,"observed_at":"2026-01-01T00:00:00Z"}}`))
	c.HandleFrame([]byte(`{"type":"qq-status","data":{"channel":"qq","running":true,"connected":true,"identity":{"display_name":"Bot"},"observed_at":"2026-01-01T00:00:10Z"}}`))
	c.HandleFrame([]byte(`{"type":"qq-status","data":{"channel":"qq","running":true,"connected":true,"observed_at":"2026-01-01T00:00:20Z"}}`))
	// Older snapshot is ignored.
	c.HandleFrame([]byte(`{"type":"qq-status","data":{"channel":"qq","running":true,"connected":false,"observed_at":"2026-01-01T00:00:05Z"}}`))

	st := c.Statuses()["qq"]
	if !st.Connected || !st.Running {
		t.Fatalf("status = %+v", st)
	}

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one transition entry, got %d", len(entries))
	}
	if entries[0].Source != SourceSystem || entries[0].Summary != "qq connected as Bot" {
		t.Fatalf("entry = %+v", entries[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if want := []string{"qq:false", "qq:true", "qq:true"}; !slices.Equal(updates, want) {
		t.Fatalf("updates = %v, want %v", updates, want)
	}
}

func TestPollStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" || r.Header.Get("Authorization") != "Bearer jwt" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusBody))
	}))
	defer srv.Close()

	c := newClient(t, Options{BaseURL: srv.URL, Token: "jwt"})
	if err := c.PollStatus(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	st := c.Statuses()
	wechat, ok := st["wechat"]
	if !ok || !wechat.Connected {
		t.Fatalf("wechat = %+v", wechat)
	}
	if wechat.Identity == nil || wechat.Identity.DisplayName != "Alice" {
		t.Fatalf("wechat identity = %+v", wechat.Identity)
	}
	if qq, ok := st["qq"]; !ok || qq.Connected {
		t.Fatalf("qq = %+v", qq)
	}

	bad := newClient(t, Options{BaseURL: srv.URL, Token: "wrong"})
	if err := bad.PollStatus(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRunHydratesStatusBeforeStreamAttaches(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(statusBody))
	}))
	defer srv.Close()

	c := newClient(t, Options{BaseURL: srv.URL, Token: "jwt", ReconnectDelay: time.Hour, ReconcileInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for {
		if _, ok := c.Statuses()["wechat"]; ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("status not fetched at startup")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunRefreshesRejectedToken(t *testing.T) {
	t.Parallel()

	var attached atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if r.URL.Path == "/api/status" {
			if r.Header.Get("Authorization") != "Bearer fresh" {
				http.Error(w, "expired", http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(statusBody))
			return
		}
		if token != "fresh" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		attached.Add(1)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var refreshes atomic.Int32
	c := newClient(t, Options{
		BaseURL:           srv.URL,
		Token:             "expired",
		ReconnectDelay:    50 * time.Millisecond,
		ReconcileInterval: time.Hour,
		RefreshToken: func(context.Context) (string, error) {
			refreshes.Add(1)
			return "fresh", nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	eventually(t, "stream to attach with refreshed token", func() bool { return attached.Load() > 0 })
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("expected a single refresh, got %d", n)
	}
	if got := c.StreamURL(); got != "ws"+srv.URL[len("http"):]+"/ws?token=fresh" {
		t.Fatalf("StreamURL() = %q", got)
	}
}

func TestRunResubscribesAfterFixedDelay(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var attempts []time.Time
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("token") != "jwt" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		n := len(attempts)
		attempts = append(attempts, time.Now())
		mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage,
			eventFrame("event", fmt.Sprintf("m-%d", n), `"channel":"qq","kind":"message","message":{"text":"hi","sender_name":"Bob"}`))
		_ = conn.Close()
	}))
	defer srv.Close()

	delay := 100 * time.Millisecond
	c := newClient(t, Options{BaseURL: srv.URL, Token: "jwt", ReconnectDelay: delay, ReconcileInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	eventually(t, "three subscriptions", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 3
	})
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(attempts); i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < delay {
			t.Fatalf("resubscribed after %v, want at least %v", gap, delay)
		}
	}

	var messages int
	for _, e := range c.Entries() {
		if e.Source == SourceQQ {
			messages++
		}
	}
	if messages < 3 {
		t.Fatalf("expected at least 3 qq entries, got %d", messages)
	}
}
