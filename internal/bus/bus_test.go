package bus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(TopicDeviceOffline, 1)
	defer b.Unsubscribe(sub)

	b.Publish(TopicDeviceOffline, "device-1")

	select {
	case got := <-sub.Channel:
		if got != "device-1" {
			t.Errorf("got %v, want device-1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNonBlockingWhenFull(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(TopicMappingCreated, 1)
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		b.Publish(TopicMappingCreated, 1)
		b.Publish(TopicMappingCreated, 2) // buffer full, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestPublishIsolatesPanickingSubscriber(t *testing.T) {
	b := New(nil)
	// A subscriber whose channel is closed behind the bus's back panics on
	// send; Publish must recover from it and still reach the next
	// subscriber.
	sub := b.Subscribe(TopicDeviceOnline, 1)
	close(sub.Channel)

	other := b.Subscribe(TopicDeviceOnline, 1)
	defer b.Unsubscribe(other)

	b.Publish(TopicDeviceOnline, "ok")

	select {
	case v := <-other.Channel:
		if v != "ok" {
			t.Errorf("got %v, want ok", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New(nil)
	if b.SubscriberCount(TopicDeviceUpdated) != 0 {
		t.Fatalf("expected 0 subscribers initially")
	}
	sub := b.Subscribe(TopicDeviceUpdated, 1)
	if b.SubscriberCount(TopicDeviceUpdated) != 1 {
		t.Fatalf("expected 1 subscriber after Subscribe")
	}
	b.Unsubscribe(sub)
	if b.SubscriberCount(TopicDeviceUpdated) != 0 {
		t.Fatalf("expected 0 subscribers after Unsubscribe")
	}
}
