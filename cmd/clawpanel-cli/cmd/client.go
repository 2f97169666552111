package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiClient is a thin JSON client for the panel API.
type apiClient struct {
	http    *http.Client
	baseURL string
	token   string
	admin   string
	cfg     config.Config
}

func normalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func defaultAPIBaseURL(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return normalizeBaseURL(trimmed)
	}
	if strings.HasPrefix(trimmed, ":") {
		return "http://127.0.0.1" + trimmed
	}
	return "http://" + trimmed
}

// newAPIClient resolves the base URL and a JWT from flags, env and config.
func newAPIClient(ctx context.Context) (*apiClient, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	base := normalizeBaseURL(apiURL)
	if base == "" {
		base = defaultAPIBaseURL(cfg.Server.Addr)
	}
	if base == "" {
		return nil, fmt.Errorf("api url is required")
	}
	c := &apiClient{http: &http.Client{Timeout: timeout}, baseURL: base, token: strings.TrimSpace(jwtToken), cfg: cfg}
	if c.token != "" {
		return c, nil
	}

	admin := strings.TrimSpace(adminToken)
	if admin == "" {
		admin = strings.TrimSpace(os.Getenv("CLAWPANEL_ADMIN_TOKEN"))
	}
	if admin == "" {
		admin = strings.TrimSpace(cfg.Admin.Token)
	}
	if admin == "" {
		return nil, fmt.Errorf("no credentials; pass --jwt or --admin-token")
	}
	c.admin = admin
	if _, err := c.login(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// canRefresh reports whether a new JWT can be minted without the user.
func (c *apiClient) canRefresh() bool {
	return c.admin != ""
}

// login exchanges the admin token for a fresh JWT and keeps it.
func (c *apiClient) login(ctx context.Context) (string, error) {
	if c.admin == "" {
		return "", fmt.Errorf("no admin token to renew the session; pass --admin-token")
	}
	c.token = ""
	body, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"token": c.admin})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.token = gjson.GetBytes(body, "access_token").String()
	if c.token == "" {
		return "", fmt.Errorf("login succeeded but token missing")
	}
	return c.token, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, msg)
	}
	return raw, nil
}
