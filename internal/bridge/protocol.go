package bridge

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/clawpanel/clawpanel/internal/channel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is one encoded observer message. Frames are shared between sessions and never mutated.
type Frame []byte

// Envelope is the wire shape of every frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SystemView is the data of a system event.
type SystemView struct {
	Subtype     channel.SystemSubtype `json:"subtype"`
	Type        string                `json:"type"`
	Content     string                `json:"content,omitempty"`
	DisplayName string                `json:"display_name,omitempty"`
	Payload     jsoniter.RawMessage   `json:"payload,omitempty"`
}

// EventView is the data of an event frame.
type EventView struct {
	ID      string           `json:"id"`
	Channel string           `json:"channel"`
	Kind    string           `json:"kind"`
	Time    int64            `json:"time"`
	Message *channel.Message `json:"message,omitempty"`
	System  *SystemView      `json:"system,omitempty"`
}

// NewEventView converts message and system events. Other kinds return false.
func NewEventView(ev channel.Event) (EventView, bool) {
	switch e := ev.(type) {
	case channel.MessageEvent:
		msg := e.Message
		return EventView{
			ID:      e.ID,
			Channel: e.Channel.String(),
			Kind:    string(channel.EventMessage),
			Time:    e.At.UnixMilli(),
			Message: &msg,
		}, true
	case channel.SystemEvent:
		view := &SystemView{
			Subtype:     e.Subtype,
			Type:        e.Type,
			Content:     e.Content,
			DisplayName: e.DisplayName,
		}
		if len(e.Payload) > 0 && json.Valid(e.Payload) {
			view.Payload = append(jsoniter.RawMessage(nil), e.Payload...)
		}
		return EventView{
			ID:      e.ID,
			Channel: e.Channel.String(),
			Kind:    string(channel.EventSystem),
			Time:    e.At.UnixMilli(),
			System:  view,
		}, true
	}
	return EventView{}, false
}

func encode(topic string, data any) (Frame, error) {
	return json.Marshal(Envelope{Type: topic, Data: data})
}
