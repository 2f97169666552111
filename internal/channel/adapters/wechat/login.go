package wechat

import (
	"context"
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

var alreadyLoggedIn = regexp.MustCompile(`Contact<(.+?)>is already login`)

// ResolveLogin queries GET /login. Transport failures become a not-logged-in result.
func (a *Adapter) ResolveLogin(ctx context.Context) channel.LoginResult {
	resp, err := a.client.Request(ctx, http.MethodGet, "/login", nil)
	if err != nil {
		a.logger.Debug("login status query failed", "error", err)
		return channel.LoginResult{Err: err.Error()}
	}
	return InterpretLogin(resp)
}

// InterpretLogin maps a /login reply. A page that is not JSON is the QR pairing page.
func InterpretLogin(resp transport.Response) channel.LoginResult {
	if !resp.Structured() {
		return channel.LoginResult{NeedsScan: true}
	}
	if resp.Get("success").Type == gjson.True {
		if m := alreadyLoggedIn.FindStringSubmatch(resp.Get("message").String()); m != nil {
			return channel.LoginResult{
				LoggedIn: true,
				Identity: &channel.Identity{DisplayName: m[1]},
				Raw:      resp.Value(),
			}
		}
	}
	return channel.LoginResult{Raw: resp.Value()}
}
