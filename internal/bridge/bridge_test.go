package bridge

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/health"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
	"github.com/clawpanel/clawpanel/internal/logger"
)

type idleRequester struct{}

func (idleRequester) Request(ctx context.Context, _, _ string, _ any) (transport.Response, error) {
	<-ctx.Done()
	return transport.Response{}, ctx.Err()
}

type stubBackend struct {
	desc channel.Descriptor
}

func (b stubBackend) Descriptor() channel.Descriptor { return b.desc }
func (stubBackend) Requester() health.Requester { return idleRequester{} }
func (stubBackend) LivenessCheck() health.Check { return health.Check{Path: "/healthz"} }
func (stubBackend) ResolveLogin(context.Context) channel.LoginResult { return channel.LoginResult{} }
func (stubBackend) Normalize(channel.CallbackPayload, time.Time) (channel.Event, bool) {
	return nil, false
}
func (stubBackend) Send(context.Context, channel.SendRequest) channel.SendResult {
	return channel.SendResult{OK: true}
}

func newManager(t *testing.T) (*channel.Manager, *channel.Source, *channel.Source) {
	t.Helper()
	m := channel.NewManager(nil)
	qq := channel.NewSource(stubBackend{desc: channel.Descriptor{Type: "qq", EventTopic: "event", StatusTopic: "qq-status"}}, channel.SourceOptions{})
	wx := channel.NewSource(stubBackend{desc: channel.Descriptor{Type: "wechat", EventTopic: "wechat-event", StatusTopic: "wechat-status"}}, channel.SourceOptions{})
	m.MustRegister(qq)
	m.MustRegister(wx)
	return m, qq, wx
}

func message(ch channel.ChannelType, i int) channel.MessageEvent {
	return channel.MessageEvent{
		Channel: ch,
		ID:      fmt.Sprintf("m-%d", i),
		Message: channel.Message{Type: "text", Text: fmt.Sprintf("msg %d", i)},
		At:      time.UnixMilli(int64(1700000000000 + i)),
	}
}

// buffered returns what a newly attached session would be replayed.
func buffered(b *Bridge) []Frame {
	_, replay, _, cancel := b.Subscribe()
	cancel()
	return replay
}

func eventually(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOptionsNormalized(t *testing.T) {
	t.Parallel()

	o := Options{ReplayCapacity: 1000, ReconcileInterval: time.Second}.normalized()
	if o.ReplayCapacity != MaxReplayCapacity || o.ReconcileInterval != MinReconcileInterval || o.SessionBuffer != DefaultSessionBuffer {
		t.Fatalf("unexpected normalized options %+v", o)
	}

	o = Options{ReplayCapacity: 10, ReconcileInterval: time.Minute}.normalized()
	if o.ReplayCapacity != 10 || o.ReconcileInterval != MaxReconcileInterval {
		t.Fatalf("unexpected normalized options %+v", o)
	}
}

func TestReplayRingKeepsMostRecentEvents(t *testing.T) {
	t.Parallel()

	m, qq, _ := newManager(t)
	b := New(nil, m, Options{})
	b.Start()
	defer b.Stop()

	for i := 0; i < 250; i++ {
		qq.Emit(message("qq", i))
	}
	replay := buffered(b)
	if len(replay) != MaxReplayCapacity {
		t.Fatalf("replay holds %d frames, want %d", len(replay), MaxReplayCapacity)
	}
	for i, frame := range replay {
		if got := gjson.GetBytes(frame, "type").String(); got != "event" {
			t.Fatalf("frame %d type = %q", i, got)
		}
		if got, want := gjson.GetBytes(frame, "data.id").String(), fmt.Sprintf("m-%d", 50+i); got != want {
			t.Fatalf("frame %d id = %q, want %q", i, got, want)
		}
	}

	st := b.Stats()
	if st.Buffered != MaxReplayCapacity || st.ReplayCapacity != MaxReplayCapacity {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSubscribeReplaysThenStreamsExactlyOnce(t *testing.T) {
	t.Parallel()

	m, qq, wx := newManager(t)
	b := New(nil, m, Options{})
	b.Start()
	defer b.Stop()

	qq.Emit(message("qq", 1))
	_, replay, frames, cancel := b.Subscribe()
	defer cancel()
	wx.Emit(message("wechat", 2))

	if len(replay) != 1 || gjson.GetBytes(replay[0], "data.id").String() != "m-1" {
		t.Fatalf("unexpected replay %q", replay)
	}

	select {
	case frame := <-frames:
		if got := gjson.GetBytes(frame, "type").String(); got != "wechat-event" {
			t.Fatalf("type = %q", got)
		}
		if got := gjson.GetBytes(frame, "data.id").String(); got != "m-2" {
			t.Fatalf("id = %q", got)
		}
		if got := gjson.GetBytes(frame, "data.message.text").String(); got != "msg 2" {
			t.Fatalf("text = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected live frame")
	}
	select {
	case frame := <-frames:
		t.Fatalf("unexpected extra frame %s", frame)
	default:
	}
}

func TestStatusEventsAreNotReplayed(t *testing.T) {
	t.Parallel()

	m, qq, _ := newManager(t)
	b := New(nil, m, Options{})
	b.Start()
	defer b.Stop()

	_, _, frames, cancel := b.Subscribe()
	defer cancel()
	qq.Emit(channel.ConnectEvent{Channel: "qq", At: time.Now()})

	select {
	case frame := <-frames:
		if got := gjson.GetBytes(frame, "type").String(); got != "qq-status" {
			t.Fatalf("type = %q", got)
		}
		if !gjson.GetBytes(frame, "data.channel").Exists() {
			t.Fatalf("status frame without channel: %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("expected status frame")
	}
	if replay := buffered(b); len(replay) != 0 {
		t.Fatalf("status frame was buffered: %q", replay)
	}
}

func TestFullSessionQueueDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	m, qq, _ := newManager(t)
	b := New(nil, m, Options{SessionBuffer: 2})
	b.Start()
	defer b.Stop()

	_, _, frames, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			qq.Emit(message("qq", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarding blocked on a slow session")
	}
	if len(frames) != 2 {
		t.Fatalf("session queue holds %d frames, want 2", len(frames))
	}
	st := b.Stats()
	if st.Dropped != 3 || st.Buffered != 5 || st.Sessions != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSystemEventCarriesPayload(t *testing.T) {
	t.Parallel()

	m, _, wx := newManager(t)
	b := New(nil, m, Options{})
	b.Start()
	defer b.Stop()

	wx.Emit(channel.SystemEvent{
		Channel: "wechat", ID: "s1", Subtype: channel.SystemLogin, Type: "system_event_login",
		DisplayName: "Alice", Payload: []byte(`{"from":{"payload":{"name":"Alice"}}}`), At: time.Now(),
	})
	replay := buffered(b)
	if len(replay) != 1 {
		t.Fatalf("replay holds %d frames", len(replay))
	}
	checks := map[string]string{
		"data.kind":                             "system",
		"data.system.subtype":                   "login",
		"data.system.payload.from.payload.name": "Alice",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(replay[0], path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestStopClosesSessionsAndUnsubscribes(t *testing.T) {
	t.Parallel()

	m, qq, _ := newManager(t)
	b := New(nil, m, Options{})
	b.Start()
	_, _, frames, cancel := b.Subscribe()
	b.Stop()
	cancel()

	if _, ok := <-frames; ok {
		t.Fatal("session channel still open after Stop")
	}
	qq.Emit(message("qq", 1))
	if st := b.Stats(); st.Buffered != 0 || st.Sessions != 0 {
		t.Fatalf("stats after stop = %+v", st)
	}
}

func TestServeOverWebSocket(t *testing.T) {
	t.Parallel()

	m, qq, _ := newManager(t)
	b := New(nil, m, Options{})
	b.opts.ReconcileInterval = 50 * time.Millisecond
	b.Start()
	defer b.Stop()
	qq.Emit(message("qq", 1))

	var logs bytes.Buffer
	reqLog := logger.New(&logs, "info", "json").With("request_id", "req-1")

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = b.Serve(logger.WithContext(r.Context(), reqLog), conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	read := func() string {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return gjson.GetBytes(data, "type").String()
	}

	for _, want := range []string{"event", "qq-status", "wechat-status"} {
		if got := read(); got != want {
			t.Fatalf("frame type = %q, want %q", got, want)
		}
	}

	eventually(t, "session attached", time.Second, func() bool { return b.Stats().Sessions == 1 })
	qq.Emit(message("qq", 2))

	seenLive, seenReconcile := false, false
	for i := 0; i < 20 && !(seenLive && seenReconcile); i++ {
		switch read() {
		case "event":
			seenLive = true
		case "qq-status":
			seenReconcile = true
		}
	}
	if !seenLive {
		t.Error("expected live event frame")
	}
	if !seenReconcile {
		t.Error("expected reconcile status frame")
	}

	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("close: %v", err)
	}
	eventually(t, "session detached", 2*time.Second, func() bool { return b.Stats().Sessions == 0 })

	// Session records go to the logger carried by the request context.
	out := logs.String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, "observer detached") {
		t.Fatalf("session records missing from request logger: %q", out)
	}
}
