// Package wechat adapts a WeChat webhook bridge (wechatbot-webhook style) to a channel backend.
package wechat

import (
	"crypto/subtle"
	"log/slog"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/health"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

// Type is the registered channel type for WeChat.
const Type channel.ChannelType = "wechat"

// Adapter talks to the bridge over HTTP and normalizes its webhook callbacks.
type Adapter struct {
	client *transport.Client
	token  string
	logger *slog.Logger
}

// NewAdapter creates an adapter. client must already carry the token as its "token" query parameter.
func NewAdapter(log *slog.Logger, client *transport.Client, token string) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		client: client,
		token:  token,
		logger: log.With(slog.String("adapter", Type.String())),
	}
}

// Descriptor returns the WeChat descriptor.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "WeChat",
		EventTopic:  "wechat-event",
		StatusTopic: "wechat-status",
	}
}

// Requester returns the HTTP client.
func (a *Adapter) Requester() health.Requester { return a.client }

// VerifyCallback checks the token on an inbound webhook.
func (a *Adapter) VerifyCallback(token string) bool {
	if a.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

// LoginURL is the bridge's QR pairing page.
func (a *Adapter) LoginURL() string {
	return a.client.URL("/login")
}
