package bus

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBusDeliversPerTopic(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	lobby, err := b.Subscribe("lobby:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	party, err := b.Subscribe("party:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev, ok := NewEvent("lobby:1", "updated", map[string]int{"id": 1})
	if !ok {
		t.Fatal("build event")
	}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recv(t, lobby)
	if got.Topic != "lobby:1" || got.Type != "updated" {
		t.Fatalf("unexpected event: %+v", got)
	}

	select {
	case leaked := <-party.C():
		t.Fatalf("event crossed topics: %+v", leaked)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusFanout(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	subs := make([]Subscription, 3)
	for i := range subs {
		sub, err := b.Subscribe("groups")
		if err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
		subs[i] = sub
	}

	ev, _ := NewEvent("groups", "member_joined", map[string]uint{"user_id": 9})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, sub := range subs {
		got := recv(t, sub)
		if got.Type != "member_joined" {
			t.Fatalf("subscriber %d got %+v", i, got)
		}
	}
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus()

	sub, err := b.Subscribe("lobby:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close sub: %v", err)
	}
	// Closing twice is fine.
	if err := sub.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}

	ev, _ := NewEvent("lobby:1", "updated", nil)
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish after close: %v", err)
	}

	if _, ok := <-sub.C(); ok {
		t.Fatal("closed subscription delivered an event")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	if _, err := b.Subscribe("lobby:2"); err != nil {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe("lobby:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev, _ := NewEvent("lobby:1", "updated", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer without anyone draining it.
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(context.Background(), ev)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
