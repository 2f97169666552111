// Package transport performs outbound HTTP calls to a channel backend and
// resolves every reply into a closed Response variant.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/logger"
)

// DefaultTimeout bounds every request end to end.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 4 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrTimeout is matched by failures caused by the request deadline.
	ErrTimeout = errors.New("transport timeout")
	// ErrConnection is matched by every other network level failure.
	ErrConnection = errors.New("transport error")
)

// Error is returned by Request. It matches ErrTimeout or ErrConnection and unwraps to the cause.
type Error struct {
	Kind   error
	Method string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Method, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind tags the shape of a decoded response body.
type Kind int

const (
	// KindText is a bare string: a JSON string literal or undecodable plain text.
	KindText Kind = iota
	// KindStructured is any JSON value other than a string.
	KindStructured
	// KindMarkup is an undecodable body that looks like HTML.
	KindMarkup
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindMarkup:
		return "markup"
	default:
		return "text"
	}
}

// Response is a decoded backend reply. Body is the raw bytes for structured
// replies; Text holds the string for text and markup replies.
type Response struct {
	Status int
	Kind   Kind
	Body   []byte
	Text   string
}

// Structured reports whether the body decoded as a JSON object, array, number, bool or null.
func (r Response) Structured() bool { return r.Kind == KindStructured }

// Get looks up a gjson path in a structured body. Non-structured responses yield an empty result.
func (r Response) Get(path string) gjson.Result {
	if r.Kind != KindStructured {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Value decodes the structured body into generic Go values, or returns Text otherwise.
func (r Response) Value() any {
	if r.Kind != KindStructured {
		return r.Text
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return string(r.Body)
	}
	return v
}

// Decode classifies raw bytes. It never fails: anything that is not JSON is kept as text or markup.
func Decode(status int, raw []byte) Response {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		if trimmed[0] == '"' {
			var s string
			if err := json.Unmarshal(trimmed, &s); err == nil {
				return Response{Status: status, Kind: KindText, Text: s}
			}
		}
		return Response{Status: status, Kind: KindStructured, Body: append([]byte(nil), trimmed...)}
	}
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return Response{Status: status, Kind: KindMarkup, Text: string(raw)}
	}
	return Response{Status: status, Kind: KindText, Text: string(raw)}
}

// Options configures a Client.
type Options struct {
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// Token is appended as a query parameter on every request when set.
	Token string
	// TokenParam names the query parameter; defaults to "token".
	TokenParam string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a single backend base URL.
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	token      string
	tokenParam string
	http       *http.Client
	logger     *slog.Logger
}

// New creates a client for baseURL.
func New(baseURL *url.URL, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.TokenParam) == "" {
		opts.TokenParam = "token"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	u := *baseURL
	u.Path = strings.TrimRight(u.Path, "/")
	return &Client{
		baseURL:    &u,
		timeout:    opts.Timeout,
		token:      opts.Token,
		tokenParam: opts.TokenParam,
		http:       opts.HTTPClient,
		logger:     logger.Component(opts.Logger, "transport").With(slog.String("host", u.Host)),
	}
}

// BaseURL returns a copy of the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// URL resolves path against the base URL and attaches the credential.
func (c *Client) URL(path string) string {
	u := *c.baseURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.RawQuery = path[i+1:]
		path = path[:i]
	}
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	if c.token != "" {
		q := u.Query()
		q.Set(c.tokenParam, c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Request sends one call. A nil body sends no payload; otherwise body is
// JSON encoded. Any HTTP status is a successful round trip.
func (c *Client) Request(ctx context.Context, method, path string, body any) (Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("encode request body: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return Response{}, &Error{Kind: ErrConnection, Method: method, Path: path, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Length", strconv.Itoa(len(payload)))
		req.ContentLength = int64(len(payload))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, c.classify(reqCtx, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, c.classify(reqCtx, method, path, err)
	}

	out := Decode(resp.StatusCode, raw)
	if out.Kind != KindStructured && len(bytes.TrimSpace(raw)) > 0 {
		c.logger.Debug("response not json",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("kind", out.Kind.String()),
		)
	}
	return out, nil
}

func (c *Client) classify(ctx context.Context, method, path string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Method: method, Path: path, Err: err}
	}
	return &Error{Kind: ErrConnection, Method: method, Path: path, Err: err}
}
