package stream

import (
	"testing"
)

func TestDispatcher_SubscriptionOrder(t *testing.T) {
	d := newDispatcher(nil)

	var order []string
	d.Subscribe(ChannelNewEntry, func(Event) { order = append(order, "first") })
	d.Subscribe(ChannelNewEntry, func(Event) { order = append(order, "second") })

	d.Dispatch(Event{Channel: ChannelNewEntry})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("dispatch order = %v, want [first second]", order)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := newDispatcher(nil)

	var first, second int
	unsub := d.Subscribe(ChannelNewEntry, func(Event) { first++ })
	d.Subscribe(ChannelNewEntry, func(Event) { second++ })

	d.Dispatch(Event{Channel: ChannelNewEntry})
	unsub()
	d.Dispatch(Event{Channel: ChannelNewEntry})

	if first != 1 {
		t.Errorf("first handler called %d times, want 1", first)
	}
	if second != 2 {
		t.Errorf("second handler called %d times, want 2", second)
	}
}

func TestDispatcher_UnsubscribeIdempotent(t *testing.T) {
	d := newDispatcher(nil)

	var a, b int
	unsubA := d.Subscribe(ChannelError, func(Event) { a++ })
	d.Subscribe(ChannelError, func(Event) { b++ })

	unsubA()
	unsubA() // second call must not remove anyone else

	d.Dispatch(Event{Channel: ChannelError})

	if a != 0 {
		t.Errorf("unsubscribed handler called %d times, want 0", a)
	}
	if b != 1 {
		t.Errorf("remaining handler called %d times, want 1", b)
	}
}

func TestDispatcher_ChannelsIndependent(t *testing.T) {
	d := newDispatcher(nil)

	var entries, alerts int
	d.Subscribe(ChannelNewEntry, func(Event) { entries++ })
	d.Subscribe(ChannelSecurityAlert, func(Event) { alerts++ })

	d.Dispatch(Event{Channel: ChannelNewEntry})
	d.Dispatch(Event{Channel: ChannelNewEntry})
	d.Dispatch(Event{Channel: ChannelSecurityAlert})

	if entries != 2 {
		t.Errorf("entries = %d, want 2", entries)
	}
	if alerts != 1 {
		t.Errorf("alerts = %d, want 1", alerts)
	}
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	d := newDispatcher(nil)

	var after int
	d.Subscribe(ChannelNewEntry, func(Event) { panic("handler bug") })
	d.Subscribe(ChannelNewEntry, func(Event) { after++ })

	d.Dispatch(Event{Channel: ChannelNewEntry})

	if after != 1 {
		t.Errorf("handler after panicking one called %d times, want 1", after)
	}
}
