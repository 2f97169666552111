package channel

import "time"

// EventKind is the closed set of events a Source emits.
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventLogin      EventKind = "login"
	EventMessage    EventKind = "message"
	EventSystem     EventKind = "system"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{EventConnect, EventDisconnect, EventLogin, EventMessage, EventSystem}

// Event is implemented only by the event types in this package.
type Event interface {
	Kind() EventKind
	Source() ChannelType
	OccurredAt() time.Time
	isEvent()
}

type ConnectEvent struct {
	Channel ChannelType
	At      time.Time
}

type DisconnectEvent struct {
	Channel ChannelType
	At      time.Time
}

type LoginEvent struct {
	Channel  ChannelType
	Identity Identity
	At       time.Time
}

type MessageEvent struct {
	Channel ChannelType
	ID      string
	Message Message
	At      time.Time
}

// SystemSubtype classifies a SystemEvent.
type SystemSubtype string

const (
	SystemLogin   SystemSubtype = "login"
	SystemLogout  SystemSubtype = "logout"
	SystemGeneric SystemSubtype = "generic"
	// SystemOutbound records a message the assistant sent.
	SystemOutbound SystemSubtype = "outbound"
)

type SystemEvent struct {
	Channel     ChannelType
	ID          string
	Subtype     SystemSubtype
	Type        string
	Content     string
	DisplayName string
	Payload     []byte
	At          time.Time
}

func (ConnectEvent) Kind() EventKind    { return EventConnect }
func (DisconnectEvent) Kind() EventKind { return EventDisconnect }
func (LoginEvent) Kind() EventKind      { return EventLogin }
func (MessageEvent) Kind() EventKind    { return EventMessage }
func (SystemEvent) Kind() EventKind     { return EventSystem }

func (e ConnectEvent) Source() ChannelType    { return e.Channel }
func (e DisconnectEvent) Source() ChannelType { return e.Channel }
func (e LoginEvent) Source() ChannelType      { return e.Channel }
func (e MessageEvent) Source() ChannelType    { return e.Channel }
func (e SystemEvent) Source() ChannelType     { return e.Channel }

func (e ConnectEvent) OccurredAt() time.Time    { return e.At }
func (e DisconnectEvent) OccurredAt() time.Time { return e.At }
func (e LoginEvent) OccurredAt() time.Time      { return e.At }
func (e MessageEvent) OccurredAt() time.Time    { return e.At }
func (e SystemEvent) OccurredAt() time.Time     { return e.At }

func (ConnectEvent) isEvent()    {}
func (DisconnectEvent) isEvent() {}
func (LoginEvent) isEvent()      {}
func (MessageEvent) isEvent()    {}
func (SystemEvent) isEvent()     {}
