package wechat

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel/health"
	"github.com/clawpanel/clawpanel/internal/channel/transport"
)

// LivenessCheck polls GET /healthz.
func (a *Adapter) LivenessCheck() health.Check {
	return health.Check{Method: http.MethodGet, Path: "/healthz", Interpret: IsHealthy}
}

// IsHealthy accepts a bare "healthy" (surrounding whitespace ignored) or {"success": true}.
func IsHealthy(r transport.Response) bool {
	switch r.Kind {
	case transport.KindText:
		return strings.TrimSpace(r.Text) == "healthy"
	case transport.KindStructured:
		return r.Get("success").Type == gjson.True
	default:
		return false
	}
}
