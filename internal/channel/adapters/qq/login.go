package qq

import (
	"context"
	"net/http"

	"github.com/clawpanel/clawpanel/internal/channel"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

// ResolveLogin queries get_login_info.
func (a *Adapter) ResolveLogin(ctx context.Context) channel.LoginResult {
	resp, err := a.client.Request(ctx, http.MethodGet, "/get_login_info", nil)
	if err != nil {
		a.logger.Debug("login info query failed", "error", err)
		return channel.LoginResult{Err: err.Error()}
	}
	return InterpretLogin(resp)
}

// InterpretLogin maps a get_login_info reply. QQ has no pairing page, so
// non-JSON replies are plain failures.
func InterpretLogin(resp transport.Response) channel.LoginResult {
	if !resp.Structured() {
		return channel.LoginResult{Raw: resp.Text}
	}
	uid := resp.Get("data.user_id")
	if resp.Get("status").String() == "ok" && uid.Exists() && uid.String() != "" && uid.String() != "0" {
		return channel.LoginResult{
			LoggedIn: true,
			Identity: &channel.Identity{
				DisplayName: resp.Get("data.nickname").String(),
				ExternalID:  uid.String(),
			},
			Raw: resp.Value(),
		}
	}
	return channel.LoginResult{Raw: resp.Value()}
}
