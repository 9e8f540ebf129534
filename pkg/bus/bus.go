package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSubscribers is returned by Send when nothing listens on the topic.
var ErrNoSubscribers = errors.New("bus: no subscribers for topic")

// Event is one published notification.
type Event struct {
	ID      string
	Topic   string
	Time    time.Time
	Payload interface{}
}

// Mailbox receives events for one subscription.
type Mailbox chan Event

// Publisher is the sink the framework components emit named events through.
// Implementations must not block the publisher.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Bus is the in-process Publisher: a topic-keyed fan-out to subscriber
// mailboxes. Delivery is fire-and-forget; a full mailbox drops the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

type subscription struct {
	name    string
	mailbox Mailbox
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Publish delivers the event to every subscriber of topic without blocking.
func (b *Bus) Publish(topic string, payload interface{}) {
	evt := Event{
		ID:      uuid.New().String(),
		Topic:   topic,
		Time:    time.Now(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[topic] {
		select {
		case sub.mailbox <- evt:
		default:
			// Subscriber is not keeping up; drop rather than stall the
			// publishing goroutine (it may be a receive loop).
		}
	}
}

// Subscribe registers a mailbox for topic. name disambiguates subscribers
// sharing a mailbox.
func (b *Bus) Subscribe(topic, name string, mailbox Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], &subscription{name: name, mailbox: mailbox})
}

// Unsubscribe removes a previously registered mailbox.
func (b *Bus) Unsubscribe(topic, name string, mailbox Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.mailbox == mailbox && sub.name == name {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Send delivers to the first subscriber of topic, or reports that none
// exists. Unlike Publish, the caller learns whether anyone listens.
func (b *Bus) Send(topic string, payload interface{}) error {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()
	if len(subs) == 0 {
		return ErrNoSubscribers
	}

	evt := Event{
		ID:      uuid.New().String(),
		Topic:   topic,
		Time:    time.Now(),
		Payload: payload,
	}
	select {
	case subs[0].mailbox <- evt:
		return nil
	default:
		return errors.New("bus: subscriber mailbox full")
	}
}

// Nop returns a Publisher that discards everything.
func Nop() Publisher { return nopPublisher{} }

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}
