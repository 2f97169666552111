package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/auth"
	"github.com/clawpanel/clawpanel/internal/logger"
)

type routes struct{}

func (routes) Register(e *echo.Echo) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/ping", ok)
	e.POST("/webhook/:channel", ok)
	e.GET("/api/status", ok)
}

func TestServerAuthBoundary(t *testing.T) {
	t.Parallel()

	srv := NewServer(logger.Discard(), "", "secret", routes{}, nil)
	token, _, err := auth.GenerateToken("admin", "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	cases := []struct {
		method, target, bearer string
		status                 int
	}{
		{http.MethodGet, "/ping", "", http.StatusOK},
		{http.MethodPost, "/webhook/wechat?token=x", "", http.StatusOK},
		{http.MethodGet, "/api/status", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/status", token, http.StatusOK},
		{http.MethodGet, "/api/status?token=" + token, "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, nil)
		if tc.bearer != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+tc.bearer)
		}
		rec := httptest.NewRecorder()
		srv.Echo().ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.target, rec.Code, tc.status)
		}
	}
}

type loggingRoute struct{}

func (loggingRoute) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		logger.FromContext(c.Request().Context()).Info("handled")
		return c.NoContent(http.StatusOK)
	})
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	srv := NewServer(logger.New(&buf, "info", "json"), "", "secret", loggingRoute{})
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := rec.Header().Get(echo.HeaderXRequestID)
	if id == "" {
		t.Fatal("response has no request id")
	}
	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if entry["msg"] == "handled" {
			found = true
			if entry["request_id"] != id {
				t.Fatalf("handler record request_id = %v, want %q", entry["request_id"], id)
			}
		}
	}
	if !found {
		t.Fatalf("handler record missing: %q", buf.String())
	}
}

func TestRedactURI(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/ws?token=abc":                    "/ws?token=redacted",
		"/get_status?x=1&access_token=abc": "/get_status?access_token=redacted&x=1",
		"/api/status":                      "/api/status",
		"/a?b=c":                           "/a?b=c",
	}
	for in, want := range cases {
		if got := redactURI(in); got != want {
			t.Errorf("redactURI(%q) = %q, want %q", in, got, want)
		}
	}
}
