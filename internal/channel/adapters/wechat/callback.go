package wechat

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
)

const systemEventPrefix = "system_event_"

// Normalize implements channel.Backend.
func (a *Adapter) Normalize(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	return Normalize(p, receivedAt)
}

// Normalize maps a bridge webhook payload to an event. Fields are strings;
// source may be a JSON string or an object.
func Normalize(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	if !p.Valid() {
		return nil, false
	}
	typ := p.Get("type").String()
	if typ == "" {
		typ = "unknown"
	}
	content := p.Get("content").String()
	src := parseSource(p.Get("source"))

	if strings.HasPrefix(typ, systemEventPrefix) {
		ev := channel.SystemEvent{
			Subtype: channel.SystemGeneric,
			Type:    typ,
			Content: content,
			Payload: []byte(src.Raw),
			At:      receivedAt,
		}
		switch typ {
		case systemEventPrefix + "login":
			ev.Subtype = channel.SystemLogin
			ev.DisplayName = src.Get("from.payload.name").String()
		case systemEventPrefix + "logout":
			ev.Subtype = channel.SystemLogout
		}
		return ev, true
	}

	if flag(p.Get("isMsgFromSelf")) {
		return nil, false
	}

	group := roomName(src.Get("room"))
	return channel.MessageEvent{
		Message: channel.Message{
			Type:         typ,
			Text:         content,
			SenderName:   firstNonEmpty(src.Get("from.payload.name").String(), src.Get("from.name").String()),
			SenderID:     firstNonEmpty(src.Get("from.payload.id").String(), src.Get("from.id").String()),
			GroupName:    group,
			GroupID:      src.Get("room.id").String(),
			IsGroup:      group != "",
			IsMention:    flag(p.Get("isMentioned")),
			ReceivedAtMs: receivedAt.UnixMilli(),
		},
		At: receivedAt,
	}, true
}

func parseSource(r gjson.Result) gjson.Result {
	switch {
	case r.Type == gjson.String:
		if gjson.Valid(r.Str) {
			if parsed := gjson.Parse(r.Str); parsed.IsObject() {
				return parsed
			}
		}
	case r.IsObject():
		return r
	}
	return gjson.Parse("{}")
}

func roomName(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	if r.IsObject() {
		return firstNonEmpty(r.Get("payload.topic").String(), r.Get("topic").String(), r.Get("id").String())
	}
	return ""
}

// flag reports whether r is the literal string "1".
func flag(r gjson.Result) bool {
	return r.Type == gjson.String && r.Str == "1"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
