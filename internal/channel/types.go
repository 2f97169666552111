package channel

import (
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChannelType identifies a messaging platform (e.g. "qq", "wechat").
type ChannelType string

func (t ChannelType) String() string { return string(t) }

// NormalizeType lower-cases and trims a raw channel name.
func NormalizeType(raw string) ChannelType {
	return ChannelType(strings.ToLower(strings.TrimSpace(raw)))
}

// Descriptor is the static description of a backend.
type Descriptor struct {
	Type        ChannelType
	DisplayName string
	// EventTopic is the observer frame type for message and system events.
	EventTopic string
	// StatusTopic is the observer frame type for status snapshots.
	StatusTopic string
}

// Config is the immutable connection setting for one backend.
type Config struct {
	Type       ChannelType
	BaseURL    *url.URL
	Credential string
}

// Identity is the bot account a backend is logged in as.
type Identity struct {
	DisplayName string `json:"display_name"`
	ExternalID  string `json:"external_id,omitempty"`
}

// Status is a point-in-time view of a Source.
// Identity survives a disconnect and then describes the last known login.
type Status struct {
	Channel    ChannelType `json:"channel"`
	Running    bool        `json:"running"`
	Connected  bool        `json:"connected"`
	Identity   *Identity   `json:"identity,omitempty"`
	ObservedAt time.Time   `json:"observed_at"`
}

// LoginResult is the collapsed outcome of a login status query. It never carries a Go error.
type LoginResult struct {
	LoggedIn  bool      `json:"logged_in"`
	Identity  *Identity `json:"identity,omitempty"`
	NeedsScan bool      `json:"needs_scan,omitempty"`
	Raw       any       `json:"raw,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// SendKind selects the outbound payload form.
type SendKind string

const (
	SendText SendKind = "text"
	SendFile SendKind = "file"
)

// SendRequest is one outbound message.
type SendRequest struct {
	To      string   `json:"to"`
	IsRoom  bool     `json:"is_room"`
	Kind    SendKind `json:"kind"`
	Content string   `json:"content"`
}

// SendResult reports an outbound attempt. Failures are values, not errors.
type SendResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Raw   any    `json:"raw,omitempty"`
}

// SendFailure builds a failed SendResult.
func SendFailure(msg string, raw any) SendResult {
	return SendResult{OK: false, Error: msg, Raw: raw}
}

// Message is a normalized inbound chat message.
type Message struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	SenderName   string `json:"sender_name"`
	SenderID     string `json:"sender_id"`
	GroupName    string `json:"group_name,omitempty"`
	GroupID      string `json:"group_id,omitempty"`
	IsGroup      bool   `json:"is_group"`
	IsMention    bool   `json:"is_mention"`
	IsFromSelf   bool   `json:"is_from_self"`
	ReceivedAtMs int64  `json:"received_at_ms"`
}

// CallbackPayload is an inbound webhook body as JSON.
type CallbackPayload struct {
	Raw []byte
}

// PayloadFromJSON wraps a JSON body.
func PayloadFromJSON(body []byte) CallbackPayload {
	return CallbackPayload{Raw: body}
}

// PayloadFromForm converts form fields to a JSON object, keeping the first value of each key.
func PayloadFromForm(values url.Values) CallbackPayload {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return CallbackPayload{}
	}
	return CallbackPayload{Raw: raw}
}

// Valid reports whether the payload is a JSON object.
func (p CallbackPayload) Valid() bool {
	return gjson.ValidBytes(p.Raw) && gjson.ParseBytes(p.Raw).IsObject()
}

// Get looks up a gjson path.
func (p CallbackPayload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.Raw, path)
}
