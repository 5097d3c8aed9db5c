package bus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Kind: KindMood, Text: "happy"})
	e := <-ch
	if e.Kind != KindMood || e.Text != "happy" {
		t.Errorf("event = %+v", e)
	}
	if e.At.IsZero() {
		t.Error("Publish did not stamp the event time")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Kind: KindThought})
	}
	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered %d events, want %d with the rest dropped", got, subscriberBuffer)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", b.Subscribers())
	}
	cancel()
	cancel() // idempotent
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers = %d after cancel, want 0", b.Subscribers())
	}
	b.Publish(Event{Kind: KindMessage}) // must not panic
}
