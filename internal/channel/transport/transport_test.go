package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return New(u, opts)
}

func TestDecodeShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		kind Kind
		text string
	}{
		{"object", `{"success":true}`, KindStructured, ""},
		{"array", `[1,2]`, KindStructured, ""},
		{"json string", `"healthy"`, KindText, "healthy"},
		{"bare text", "healthy\n", KindText, "healthy\n"},
		{"markup", "  <html><body>scan me</body></html>", KindMarkup, "  <html><body>scan me</body></html>"},
		{"empty", "", KindText, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decode(200, []byte(tc.raw))
			if got.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.kind)
			}
			if tc.kind != KindStructured && got.Text != tc.text {
				t.Fatalf("text = %q, want %q", got.Text, tc.text)
			}
		})
	}
}

func TestResponseGetOnlyForStructured(t *testing.T) {
	t.Parallel()

	r := Decode(200, []byte(`{"data":{"online":true}}`))
	if !r.Get("data.online").Bool() {
		t.Fatal("expected data.online on structured reply")
	}

	text := Decode(200, []byte(`data.online`))
	if text.Get("data.online").Exists() {
		t.Fatal("text reply must not answer path lookups")
	}
	if v := text.Value(); v != "data.online" {
		t.Fatalf("Value() = %v", v)
	}
}

func TestRequestSendsJSONBodyAndToken(t *testing.T) {
	t.Parallel()

	var gotBody, gotType, gotLength, gotToken string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotLength = strconv.FormatInt(r.ContentLength, 10)
		gotToken = r.URL.Query().Get("token")
		_, _ = w.Write([]byte(`{"success":true}`))
	}, Options{Token: "abc"})

	resp, err := c.Request(context.Background(), http.MethodPost, "/webhook/msg/v2", map[string]any{"to": "alice"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Kind != KindStructured {
		t.Fatalf("kind = %v", resp.Kind)
	}
	if gotBody != `{"to":"alice"}` {
		t.Fatalf("body = %s", gotBody)
	}
	if gotType != "application/json" {
		t.Fatalf("content type = %q", gotType)
	}
	if gotLength != strconv.Itoa(len(gotBody)) {
		t.Fatalf("content length = %s", gotLength)
	}
	if gotToken != "abc" {
		t.Fatalf("token = %q", gotToken)
	}
}

func TestRequestCustomTokenParamKeepsQuery(t *testing.T) {
	t.Parallel()

	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`ok`))
	}, Options{Token: "napcat", TokenParam: "access_token"})

	resp, err := c.Request(context.Background(), http.MethodGet, "get_status?no_cache=true", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Kind != KindText {
		t.Fatalf("kind = %v", resp.Kind)
	}
	if got.Get("access_token") != "napcat" || got.Get("no_cache") != "true" {
		t.Fatalf("query = %v", got)
	}
}

func TestRequestNon2xxStillDecodes(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"bad token"}`))
	}, Options{})

	resp, err := c.Request(context.Background(), http.MethodGet, "/healthz", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.Status)
	}
	if msg := resp.Get("message").String(); msg != "bad token" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Options{Timeout: 50 * time.Millisecond})
	defer close(release)

	start := time.Now()
	_, err := c.Request(context.Background(), http.MethodGet, "/healthz", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Fatal("timeout must not also be a connection error")
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Fatalf("request took %v", elapsed)
	}
}

func TestRequestConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	srv.Close()

	_, err := New(u, Options{}).Request(context.Background(), http.MethodGet, "/healthz", nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Path != "/healthz" || terr.Err == nil {
		t.Fatalf("error = %+v", terr)
	}
}
