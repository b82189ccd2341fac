// Package eventbus fans call-manager domain events out to subscribers
// (the persistence sink, or any other subscriber) without ever blocking
// the publisher.
package eventbus

import (
	"sync"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/rs/zerolog"
)

const defaultSubscriberBuffer = 32

// Subscription is a token returned by Subscribe, used to unsubscribe.
type Subscription int

// Bus is a single-writer, multi-reader broadcast channel. The call
// manager is its only writer; every other component only subscribes.
// A subscriber that falls behind has its oldest-unread events dropped
// rather than ever blocking Publish.
type Bus struct {
	log zerolog.Logger

	mu      sync.Mutex
	nextID  Subscription
	subs    map[Subscription]chan callmanager.Event
	names   map[Subscription]string
	bufSize int
}

func New(log zerolog.Logger) *Bus {
	return &Bus{
		log:     log.With().Str("component", "eventbus").Logger(),
		subs:    make(map[Subscription]chan callmanager.Event),
		names:   make(map[Subscription]string),
		bufSize: defaultSubscriberBuffer,
	}
}

// Subscribe registers a new listener identified by name (used only for
// logging slow-subscriber drops) and returns the channel of events and a
// token to later Unsubscribe.
func (b *Bus) Subscribe(name string) (<-chan callmanager.Event, Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan callmanager.Event, b.bufSize)
	b.subs[id] = ch
	b.names[id] = name
	return ch, id
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
		delete(b.names, id)
	}
}

// Publish delivers ev to every current subscriber. A subscriber whose
// buffer is full has its oldest queued event dropped to make room,
// rather than blocking this call.
func (b *Bus) Publish(ev callmanager.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
				b.log.Warn().Str("subscriber", b.names[id]).Msg("dropping event, subscriber buffer full")
			}
		}
	}
}
