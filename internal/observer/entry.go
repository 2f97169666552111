package observer

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
)

const maxSummaryRunes = 120

// entryFromEvent turns the data of an event frame into a log entry.
func entryFromEvent(data gjson.Result) (LogEntry, bool) {
	if !data.IsObject() {
		return LogEntry{}, false
	}
	entry := LogEntry{
		ID:     data.Get("id").String(),
		Time:   time.UnixMilli(data.Get("time").Int()),
		Source: sourceOf(data.Get("channel").String()),
	}
	switch channel.EventKind(data.Get("kind").String()) {
	case channel.EventMessage:
		msg := data.Get("message")
		if !msg.Exists() {
			return LogEntry{}, false
		}
		entry.Summary = truncate(messageSummary(msg))
		entry.Detail = msg.Get("text").String()
	case channel.EventSystem:
		sys := data.Get("system")
		if !sys.Exists() {
			return LogEntry{}, false
		}
		entry.Summary, entry.Detail = systemSummary(entry.Source, sys)
		switch channel.SystemSubtype(sys.Get("subtype").String()) {
		case channel.SystemOutbound:
			entry.Source = SourceAssistant
		case channel.SystemLogin, channel.SystemLogout:
			entry.Source = SourceSystem
		}
		entry.Summary = truncate(entry.Summary)
	default:
		return LogEntry{}, false
	}
	return entry, true
}

func messageSummary(msg gjson.Result) string {
	sender := firstNonEmpty(msg.Get("sender_name").String(), msg.Get("sender_id").String(), "unknown")
	var b strings.Builder
	if msg.Get("is_group").Bool() {
		b.WriteString("[")
		b.WriteString(firstNonEmpty(msg.Get("group_name").String(), msg.Get("group_id").String(), "group"))
		b.WriteString("] ")
	}
	b.WriteString(sender)
	if msg.Get("is_mention").Bool() {
		b.WriteString(" (@)")
	}
	b.WriteString(": ")
	text := msg.Get("text").String()
	if text == "" {
		text = "<" + firstNonEmpty(msg.Get("type").String(), "empty") + ">"
	}
	b.WriteString(oneLine(text))
	return b.String()
}

func systemSummary(src Source, sys gjson.Result) (summary, detail string) {
	name := sys.Get("display_name").String()
	content := sys.Get("content").String()
	switch channel.SystemSubtype(sys.Get("subtype").String()) {
	case channel.SystemLogin:
		summary = string(src) + " logged in"
		if name != "" {
			summary += " as " + name
		}
	case channel.SystemLogout:
		summary = string(src) + " logged out"
		if name != "" {
			summary += " (" + name + ")"
		}
	case channel.SystemOutbound:
		summary = "-> " + firstNonEmpty(name, "?") + ": " + oneLine(content)
		return summary, content
	default:
		summary = string(src) + " " + firstNonEmpty(sys.Get("type").String(), "system")
		if content != "" {
			summary += ": " + oneLine(content)
		}
	}
	if p := sys.Get("payload"); p.Exists() {
		detail = p.Raw
	}
	return summary, detail
}

func sourceOf(name string) Source {
	switch channel.NormalizeType(name) {
	case "qq":
		return SourceQQ
	case "wechat":
		return SourceWeChat
	default:
		return SourceSystem
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxSummaryRunes {
		return s
	}
	return string(r[:maxSummaryRunes-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
