// Package boot turns the loaded TOML config into typed runtime settings.
package boot

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/clawpanel/clawpanel/internal/config"
)

// ChannelRuntime is a parsed [wechat] or [qq] section.
type ChannelRuntime struct {
	Enabled        bool
	BaseURL        *url.URL
	Token          string
	HealthInterval time.Duration
	RequestTimeout time.Duration
	SendRate       float64
	SendBurst      int
}

// RuntimeConfig holds parsed runtime settings (JWT, server address, channel backends, bridge bounds).
// Values may be overridden by environment variables; see EnvOverrides.
type RuntimeConfig struct {
	JwtSecret    string
	JwtExpiresIn time.Duration
	ServerAddr   string
	AdminToken   string

	WeChat ChannelRuntime
	QQ     ChannelRuntime

	ReplayCapacity    int
	SessionBuffer     int
	ReconcileInterval time.Duration
	ReconnectDelay    time.Duration

	FileServer config.FileServerConfig
}

// EnvOverrides are environment variables that take precedence over the TOML file.
type EnvOverrides struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	JWTSecret   string `env:"JWT_SECRET"`
	WeChatToken string `env:"WECHAT_TOKEN"`
	QQToken     string `env:"QQ_ACCESS_TOKEN"`
}

// Apply copies every non-empty override into cfg.
func (o EnvOverrides) Apply(cfg *config.Config) {
	if o.HTTPAddr != "" {
		cfg.Server.Addr = o.HTTPAddr
	}
	if o.AdminToken != "" {
		cfg.Admin.Token = o.AdminToken
	}
	if o.JWTSecret != "" {
		cfg.Auth.JWTSecret = o.JWTSecret
	}
	if o.WeChatToken != "" {
		cfg.WeChat.Token = o.WeChatToken
	}
	if o.QQToken != "" {
		cfg.QQ.Token = o.QQToken
	}
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	overrides, err := env.ParseAs[EnvOverrides]()
	if err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	overrides.Apply(&cfg)

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	jwtExpiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}

	wechat, err := parseChannel("wechat", cfg.WeChat)
	if err != nil {
		return nil, err
	}
	qq, err := parseChannel("qq", cfg.QQ)
	if err != nil {
		return nil, err
	}

	reconcile, err := parseDuration("bridge.reconcile_interval", cfg.Bridge.ReconcileInterval, config.DefaultReconcileInterval)
	if err != nil {
		return nil, err
	}
	reconnect, err := parseDuration("bridge.reconnect_delay", cfg.Bridge.ReconnectDelay, config.DefaultReconnectDelay)
	if err != nil {
		return nil, err
	}

	ret := &RuntimeConfig{
		JwtSecret:         cfg.Auth.JWTSecret,
		JwtExpiresIn:      jwtExpiresIn,
		ServerAddr:        cfg.Server.Addr,
		AdminToken:        strings.TrimSpace(cfg.Admin.Token),
		WeChat:            wechat,
		QQ:                qq,
		ReplayCapacity:    cfg.Bridge.ReplayCapacity,
		SessionBuffer:     cfg.Bridge.SessionBuffer,
		ReconcileInterval: reconcile,
		ReconnectDelay:    reconnect,
		FileServer:        cfg.FileServer,
	}

	return ret, nil
}

func parseChannel(name string, cfg config.ChannelConfig) (ChannelRuntime, error) {
	rt := ChannelRuntime{
		Enabled:   cfg.Enabled,
		Token:     strings.TrimSpace(cfg.Token),
		SendRate:  cfg.SendRate,
		SendBurst: cfg.SendBurst,
	}
	if !cfg.Enabled {
		return rt, nil
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rt, fmt.Errorf("invalid %s.base_url %q", name, cfg.BaseURL)
	}
	rt.BaseURL = u
	if rt.HealthInterval, err = parseDuration(name+".health_interval", cfg.HealthInterval, config.DefaultHealthInterval); err != nil {
		return rt, err
	}
	if rt.RequestTimeout, err = parseDuration(name+".request_timeout", cfg.RequestTimeout, config.DefaultRequestTimeout); err != nil {
		return rt, err
	}
	if rt.SendRate <= 0 {
		rt.SendRate = config.DefaultSendRate
	}
	if rt.SendBurst <= 0 {
		rt.SendBurst = config.DefaultSendBurst
	}
	return rt, nil
}

func parseDuration(key, value, fallback string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
