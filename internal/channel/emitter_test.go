package channel

import (
	"testing"
	"time"
)

func TestEmitterDeliversByKindInOrder(t *testing.T) {
	t.Parallel()

	e := NewEmitter()
	var got []string
	e.On(EventConnect, func(Event) { got = append(got, "a") })
	e.On(EventConnect, func(Event) { got = append(got, "b") })
	e.On(EventDisconnect, func(Event) { got = append(got, "wrong") })

	e.Emit(ConnectEvent{Channel: "qq", At: time.Now()})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	t.Parallel()

	e := NewEmitter()
	calls := 0
	cancel := e.On(EventMessage, func(Event) { calls++ })
	e.Emit(MessageEvent{})
	cancel()
	cancel()
	e.Emit(MessageEvent{})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestEmitterHandlerMayUnsubscribeDuringEmit(t *testing.T) {
	t.Parallel()

	e := NewEmitter()
	var cancel func()
	calls := 0
	cancel = e.On(EventSystem, func(Event) {
		calls++
		cancel()
	})
	e.Emit(SystemEvent{})
	e.Emit(SystemEvent{})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
