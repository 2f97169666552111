package channel

import (
	"context"
	"time"

	"github.com/clawpanel/clawpanel/internal/channel/health"
)

// Backend is implemented by each platform adapter.
type Backend interface {
	Descriptor() Descriptor
	// Requester performs the backend's HTTP calls.
	Requester() health.Requester
	// LivenessCheck names the liveness endpoint and how to read its reply.
	LivenessCheck() health.Check
	// ResolveLogin queries login status. It never fails; failures are folded into the result.
	ResolveLogin(ctx context.Context) LoginResult
	// Normalize maps a webhook payload to an event. false means discard.
	Normalize(payload CallbackPayload, receivedAt time.Time) (Event, bool)
	// Send delivers one outbound message.
	Send(ctx context.Context, req SendRequest) SendResult
}

// LoginURLProvider is implemented by backends with a QR pairing page.
type LoginURLProvider interface {
	LoginURL() string
}

// CallbackAuthenticator is implemented by backends that verify inbound webhook credentials.
type CallbackAuthenticator interface {
	VerifyCallback(token string) bool
}
