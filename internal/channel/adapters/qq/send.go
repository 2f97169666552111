package qq

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/clawpanel/clawpanel/internal/channel"
)

type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true}

// Send calls send_group_msg or send_private_msg. Targets may be a bare
// numeric ID or prefixed with "group:" / "private:".
func (a *Adapter) Send(ctx context.Context, req channel.SendRequest) channel.SendResult {
	action, field, id, err := resolveTarget(req)
	if err != nil {
		return channel.SendFailure(err.Error(), nil)
	}
	resp, err := a.client.Request(ctx, http.MethodPost, "/"+action, map[string]any{
		field:     id,
		"message": buildMessage(req),
	})
	if err != nil {
		return channel.SendFailure(err.Error(), nil)
	}
	if !resp.Structured() {
		return channel.SendFailure("unexpected response from gateway", resp.Text)
	}
	if resp.Get("status").String() == "ok" && resp.Get("retcode").Int() == 0 {
		return channel.SendResult{OK: true, Raw: resp.Value()}
	}
	msg := firstNonEmpty(resp.Get("wording").String(), resp.Get("message").String(), "send rejected by gateway")
	return channel.SendFailure(msg, resp.Value())
}

func resolveTarget(req channel.SendRequest) (action, field string, id int64, err error) {
	to := strings.TrimSpace(req.To)
	group := req.IsRoom
	switch {
	case strings.HasPrefix(to, "group:"):
		to, group = strings.TrimPrefix(to, "group:"), true
	case strings.HasPrefix(to, "private:"):
		to, group = strings.TrimPrefix(to, "private:"), false
	}
	id, err = strconv.ParseInt(to, 10, 64)
	if err != nil {
		return "", "", 0, &targetError{to: req.To}
	}
	if group {
		return "send_group_msg", "group_id", id, nil
	}
	return "send_private_msg", "user_id", id, nil
}

func buildMessage(req channel.SendRequest) []segment {
	if req.Kind == channel.SendFile {
		name := req.Content
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		if imageExts[strings.ToLower(path.Ext(name))] {
			return []segment{{Type: "image", Data: map[string]string{"file": req.Content}}}
		}
		return []segment{{Type: "file", Data: map[string]string{"file": req.Content}}}
	}
	return []segment{{Type: "text", Data: map[string]string{"text": req.Content}}}
}

type targetError struct {
	to string
}

func (e *targetError) Error() string {
	return "invalid QQ target: " + strconv.Quote(e.to)
}
