// Package bus is an in-process pub/sub event bus for domain events,
// generalized from the teacher's GraphQL-subscription pubsub into the
// device/mapping lifecycle events the Store publishes.
package bus

import (
	"log/slog"
	"sync"
)

// Topic names a domain event channel.
type Topic string

const (
	TopicDeviceDiscovered Topic = "device_discovered"
	TopicDeviceUpdated    Topic = "device_updated"
	TopicDeviceOnline     Topic = "device_online"
	TopicDeviceOffline    Topic = "device_offline"
	TopicMappingCreated   Topic = "mapping_created"
	TopicMappingUpdated   Topic = "mapping_updated"
	TopicMappingDeleted   Topic = "mapping_deleted"
)

// Subscriber receives events published to its Topic on Channel.
type Subscriber struct {
	ID      int
	Topic   Topic
	Channel chan any
}

// Bus is a topic-partitioned, non-blocking pub/sub dispatcher. Subscriber
// dispatch is isolated behind a recover() boundary: a panicking or blocked
// subscriber must not stall or crash the publisher (spec §9).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	nextID      int
	logger      *slog.Logger
}

// New returns an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Topic][]*Subscriber),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a new subscriber for topic with the given channel
// buffer depth and returns it. Callers must eventually call Unsubscribe.
func (b *Bus) Subscribe(topic Topic, bufferSize int) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{
		ID:      b.nextID,
		Topic:   topic,
		Channel: make(chan any, bufferSize),
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			close(s.Channel)
			return
		}
	}
}

// Publish sends event to every subscriber of topic. Delivery is
// non-blocking: a subscriber whose buffer is full has the event dropped for
// it, logged at debug, rather than stalling the publisher. Each dispatch
// runs under a recover() boundary.
func (b *Bus) Publish(topic Topic, event any) {
	b.mu.RLock()
	subs := append([]*Subscriber(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub *Subscriber, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked, isolating", "topic", sub.Topic, "subscriber_id", sub.ID, "recovered", r)
		}
	}()

	select {
	case sub.Channel <- event:
	default:
		b.logger.Debug("subscriber channel full, dropping event", "topic", sub.Topic, "subscriber_id", sub.ID)
	}
}

// SubscriberCount returns the number of active subscribers for topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
