package stream

import (
	"log/slog"
	"sync"
)

// dispatcher decouples producers (router, state machine, scheduler) from
// consumers. Each channel has an independent, ordered subscriber list.
type dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[Channel][]subscriber
}

type subscriber struct {
	id int
	fn Handler
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		logger: logger,
		subs:   make(map[Channel][]subscriber),
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Calling the returned function more than once is a no-op.
func (d *dispatcher) Subscribe(ch Channel, fn Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[ch] = append(d.subs[ch], subscriber{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.remove(ch, id)
	}
}

func (d *dispatcher) remove(ch Channel, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[ch]
	for i, s := range list {
		if s.id == id {
			d.subs[ch] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch invokes subscribers in subscription order. A panicking handler is
// logged and does not prevent the remaining handlers from running.
func (d *dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	list := make([]subscriber, len(d.subs[ev.Channel]))
	copy(list, d.subs[ev.Channel])
	d.mu.Unlock()

	for _, s := range list {
		d.invoke(s, ev)
	}
}

func (d *dispatcher) invoke(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked",
				"channel", ev.Channel,
				"panic", r,
			)
		}
	}()
	s.fn(ev)
}
