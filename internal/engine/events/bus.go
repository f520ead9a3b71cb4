package events

import (
	"sync"
	"sync/atomic"

	"github.com/surge-downloader/loader/internal/utils"
)

// Listener receives events synchronously on the goroutine draining the bus.
type Listener func(Event)

// Subscription is the token returned by Subscribe. The same token detaches
// the listener again.
type Subscription struct {
	sub *subscriber
}

type subscriber struct {
	id     uint64
	code   Code // 0 matches every code
	fn     Listener
	active atomic.Bool
}

type queued struct {
	event Event
	subs  []*subscriber
}

// Bus is an ordered publish/subscribe channel keyed by event code.
//
// Events are delivered in the order they were enqueued, to the subscribers
// registered at enqueue time that are still subscribed at delivery time.
// Only one goroutine drains at a time, so a listener that triggers more
// events (for example by calling back into a loader) sees them delivered
// after it returns, never interleaved.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	subs     []*subscriber // copy-on-write
	queue    []queued
	draining bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for events with the given code.
func (b *Bus) Subscribe(code Code, fn Listener) Subscription {
	return b.add(code, fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Listener) Subscription {
	return b.add(0, fn)
}

func (b *Bus) add(code Code, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{id: b.nextID, code: code, fn: fn}
	s.active.Store(true)

	subs := make([]*subscriber, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, s)
	return Subscription{sub: s}
}

// Unsubscribe detaches a listener. It reports false if the token was
// already detached.
func (b *Bus) Unsubscribe(s Subscription) bool {
	if s.sub == nil || !s.sub.active.CompareAndSwap(true, false) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, existing := range b.subs {
		if existing != s.sub {
			subs = append(subs, existing)
		}
	}
	b.subs = subs
	return true
}

// Len returns the number of attached listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Enqueue appends an event without delivering it. Callers holding their own
// lock use Enqueue, release the lock, then call Flush.
func (b *Bus) Enqueue(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, queued{event: e, subs: b.subs})
	b.mu.Unlock()
}

// Publish enqueues and delivers an event.
func (b *Bus) Publish(e Event) {
	b.Enqueue(e)
	b.Flush()
}

// Flush delivers queued events. If another goroutine (or an outer Flush on
// this goroutine) is already draining, Flush returns immediately and the
// drainer delivers the new events.
func (b *Bus) Flush() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	for {
		item, ok := b.next()
		if !ok {
			return
		}
		for _, s := range item.subs {
			if !s.active.Load() {
				continue
			}
			if s.code != 0 && s.code != item.event.Code {
				continue
			}
			s.deliver(item.event)
		}
	}
}

// deliver calls the listener, recovering a panic so the remaining listeners
// and queued events are still served.
func (s *subscriber) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			log := utils.Logger("events")
			log.Error().
				Interface("panic", r).
				Uint64("listener", s.id).
				Str("code", e.Code.String()).
				Str("target", e.TargetID()).
				Msg("listener panicked")
		}
	}()
	s.fn(e)
}

// next pops the head of the queue, clearing the draining flag under the same
// lock when the queue is empty so no event is stranded.
func (b *Bus) next() (queued, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		b.draining = false
		b.queue = nil
		return queued{}, false
	}
	item := b.queue[0]
	b.queue[0] = queued{}
	b.queue = b.queue[1:]
	return item, true
}
