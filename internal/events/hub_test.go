package events

import "testing"

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Kind: DataChanged}, Event{Kind: CoinsChanged, Balance: 10}, Event{Kind: LevelUp, Level: 2})

	want := []Kind{DataChanged, CoinsChanged, LevelUp}
	for _, k := range want {
		got := <-ch
		if got.Kind != k {
			t.Fatalf("expected %s, got %s", k, got.Kind)
		}
	}
}

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+4; i++ {
		hub.Publish(Event{Kind: CoinsChanged, Balance: i})
	}
	first := <-ch
	if first.Balance != 4 {
		t.Fatalf("expected oldest events dropped, first balance=%d", first.Balance)
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Len() != 0 {
		t.Fatalf("expected no subscribers")
	}
	hub.Publish(Event{Kind: DataChanged})
}
