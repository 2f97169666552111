package qq

import (
	"strings"
	"time"

	"github.com/clawpanel/clawpanel/internal/channel"
)

// Normalize implements channel.Backend.
func (a *Adapter) Normalize(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	return Normalize(p, receivedAt)
}

// Normalize maps a OneBot v11 event report. Heartbeats and API echoes are dropped.
func Normalize(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	if !p.Valid() {
		return nil, false
	}
	switch p.Get("post_type").String() {
	case "message":
		return normalizeMessage(p, receivedAt)
	case "meta_event":
		return normalizeMeta(p, receivedAt)
	case "notice":
		return genericEvent(p, "notice."+p.Get("notice_type").String(), receivedAt), true
	case "request":
		return genericEvent(p, "request."+p.Get("request_type").String(), receivedAt), true
	default:
		// message_sent is our own echo; an empty post_type is an API reply.
		return nil, false
	}
}

func normalizeMessage(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	selfID := p.Get("self_id").String()
	userID := p.Get("user_id").String()
	if selfID != "" && userID == selfID {
		return nil, false
	}

	text := p.Get("raw_message").String()
	mention := false
	if selfID != "" {
		cqAt := "[CQ:at,qq=" + selfID + "]"
		if strings.Contains(text, cqAt) {
			mention = true
			text = strings.TrimSpace(strings.ReplaceAll(text, cqAt, ""))
		}
	}

	isGroup := p.Get("message_type").String() == "group"
	msg := channel.Message{
		Type:         "text",
		Text:         text,
		SenderName:   firstNonEmpty(p.Get("sender.card").String(), p.Get("sender.nickname").String()),
		SenderID:     userID,
		IsGroup:      isGroup,
		IsMention:    mention,
		ReceivedAtMs: receivedAt.UnixMilli(),
	}
	if isGroup {
		msg.GroupID = p.Get("group_id").String()
		msg.GroupName = firstNonEmpty(p.Get("group_name").String(), msg.GroupID)
	}
	return channel.MessageEvent{
		ID:      p.Get("message_id").String(),
		Message: msg,
		At:      receivedAt,
	}, true
}

func normalizeMeta(p channel.CallbackPayload, receivedAt time.Time) (channel.Event, bool) {
	metaType := p.Get("meta_event_type").String()
	sub := p.Get("sub_type").String()
	if metaType == "heartbeat" {
		return nil, false
	}
	ev := genericEvent(p, "meta_event."+metaType, receivedAt)
	if metaType == "lifecycle" {
		switch sub {
		case "enable", "connect":
			ev.Subtype = channel.SystemLogin
		case "disable":
			ev.Subtype = channel.SystemLogout
		}
		ev.Content = sub
	}
	return ev, true
}

func genericEvent(p channel.CallbackPayload, typ string, receivedAt time.Time) channel.SystemEvent {
	return channel.SystemEvent{
		Subtype: channel.SystemGeneric,
		Type:    typ,
		Content: p.Get("sub_type").String(),
		Payload: append([]byte(nil), p.Raw...),
		At:      receivedAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
