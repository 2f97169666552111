// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultJWTExpiresIn      = "24h"
	DefaultWeChatBaseURL     = "http://127.0.0.1:3001"
	DefaultQQBaseURL         = "http://127.0.0.1:3000"
	DefaultHealthInterval    = "10s"
	DefaultRequestTimeout    = "10s"
	DefaultSendRate          = 2.0
	DefaultSendBurst         = 5
	DefaultReplayCapacity    = 200
	DefaultSessionBuffer     = 256
	DefaultReconcileInterval = "8s"
	DefaultReconnectDelay    = "5s"
	DefaultFileServerAddr    = "127.0.0.1:18790"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Admin      AdminConfig      `toml:"admin"`
	Auth       AuthConfig       `toml:"auth"`
	WeChat     ChannelConfig    `toml:"wechat"`
	QQ         ChannelConfig    `toml:"qq"`
	Bridge     BridgeConfig     `toml:"bridge"`
	FileServer FileServerConfig `toml:"fileserver"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
// AllowedOrigins lists browser origins, besides same-host and loopback, that may open /ws.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// AdminConfig holds the operator token exchanged for a JWT at /auth/login.
type AdminConfig struct {
	Token string `toml:"token"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 24h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// ChannelConfig describes one messaging backend.
// Token is the backend credential; it is sent on every outbound call and
// required on every inbound webhook.
type ChannelConfig struct {
	Enabled        bool    `toml:"enabled"`
	BaseURL        string  `toml:"base_url"`
	Token          string  `toml:"token"`
	HealthInterval string  `toml:"health_interval"`
	RequestTimeout string  `toml:"request_timeout"`
	SendRate       float64 `toml:"send_rate"`
	SendBurst      int     `toml:"send_burst"`
}

// BridgeConfig bounds the observer relay.
type BridgeConfig struct {
	ReplayCapacity    int    `toml:"replay_capacity"`
	SessionBuffer     int    `toml:"session_buffer"`
	ReconcileInterval string `toml:"reconcile_interval"`
	ReconnectDelay    string `toml:"reconnect_delay"`
}

// FileServerConfig controls the local media file server used by outbound file sends.
type FileServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	AllowedDirs []string `toml:"allowed_dirs"`
	DefaultDir  string   `toml:"default_dir"`
}

func defaultChannel(baseURL string) ChannelConfig {
	return ChannelConfig{
		BaseURL:        baseURL,
		HealthInterval: DefaultHealthInterval,
		RequestTimeout: DefaultRequestTimeout,
		SendRate:       DefaultSendRate,
		SendBurst:      DefaultSendBurst,
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		WeChat: defaultChannel(DefaultWeChatBaseURL),
		QQ:     defaultChannel(DefaultQQBaseURL),
		Bridge: BridgeConfig{
			ReplayCapacity:    DefaultReplayCapacity,
			SessionBuffer:     DefaultSessionBuffer,
			ReconcileInterval: DefaultReconcileInterval,
			ReconnectDelay:    DefaultReconnectDelay,
		},
		FileServer: FileServerConfig{
			Addr: DefaultFileServerAddr,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
