// Package qq adapts a OneBot v11 HTTP endpoint (NapCat and compatible
// gateways) to a channel backend. Events arrive through the gateway's HTTP
// POST reporting pointed at the webhook route.
package qq

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/health"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

// Type is the registered channel type for QQ.
const Type channel.ChannelType = "qq"

// TokenParam is the OneBot query parameter carrying the access token.
const TokenParam = "access_token"

// Adapter implements channel.Backend for OneBot v11.
type Adapter struct {
	client *transport.Client
	token  string
	logger *slog.Logger
}

// NewAdapter creates an adapter. client should be built with TokenParam.
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

// Descriptor returns the QQ descriptor. Message events use the bare "event" topic.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "QQ",
		EventTopic:  "event",
		StatusTopic: "qq-status",
	}
}

// Requester returns the HTTP client.
func (a *Adapter) Requester() health.Requester { return a.client }

// VerifyCallback checks the access token of an inbound report.
func (a *Adapter) VerifyCallback(token string) bool {
	if a.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

// LivenessCheck polls get_status.
func (a *Adapter) LivenessCheck() health.Check {
	return health.Check{Method: http.MethodGet, Path: "/get_status", Interpret: IsOnline}
}

// IsOnline accepts {"status":"ok","data":{"online":true}}.
func IsOnline(r transport.Response) bool {
	if !r.Structured() {
		return false
	}
	return r.Get("status").String() == "ok" && r.Get("data.online").Bool()
}
