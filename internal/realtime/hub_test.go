package realtime

import (
	"context"
	"testing"
	"time"

	"classroom/internal/events"
)

func staticSnapshot(occupied int) SnapshotFunc {
	return func(_ context.Context, roomID, date, slot string) (*events.Event, error) {
		return &events.Event{
			Type:      events.SeatMapSnapshot,
			RoomID:    roomID,
			Date:      date,
			Slot:      slot,
			CheckedIn: occupied,
			At:        time.Now().UTC(),
		}, nil
	}
}

func nextEvent(t *testing.T, sub *Subscriber) events.Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestSubscribe_SnapshotFirstThenStream(t *testing.T) {
	hub := NewHub(staticSnapshot(2), nil)
	sub := NewSubscriber("c1", 8)

	presence, err := hub.Subscribe(context.Background(), sub, "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	if presence != 1 {
		t.Errorf("presence = %d, want 1", presence)
	}

	first := nextEvent(t, sub)
	if first.Type != events.SeatMapSnapshot {
		t.Fatalf("first event = %s, want snapshot", first.Type)
	}
	if first.CheckedIn != 2 {
		t.Errorf("snapshot occupancy = %d, want 2", first.CheckedIn)
	}

	// own subscription's presence broadcast follows the snapshot
	second := nextEvent(t, sub)
	if second.Type != events.PresenceCount || second.Presence != 1 {
		t.Errorf("second event = %+v, want presence 1", second)
	}

	hub.Publish(events.Event{Type: events.SeatClaimed, RoomID: "r1", Date: "2026-03-02", Slot: "1", SeatCode: "A1"})
	third := nextEvent(t, sub)
	if third.Type != events.SeatClaimed || third.SeatCode != "A1" {
		t.Errorf("third event = %+v, want seat_claimed A1", third)
	}
}

func TestPublish_OnlyReachesMatchingGroup(t *testing.T) {
	hub := NewHub(staticSnapshot(0), nil)
	ctx := context.Background()

	watching := NewSubscriber("c1", 8)
	other := NewSubscriber("c2", 8)
	if _, err := hub.Subscribe(ctx, watching, "r1", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Subscribe(ctx, other, "r2", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, watching) // snapshot
	nextEvent(t, watching) // presence
	nextEvent(t, other)
	nextEvent(t, other)

	hub.Publish(events.Event{Type: events.SeatClaimed, RoomID: "r1", Date: "2026-03-02", Slot: "1"})

	if e := nextEvent(t, watching); e.Type != events.SeatClaimed {
		t.Errorf("watching got %s, want seat_claimed", e.Type)
	}
	select {
	case e := <-other.Events():
		t.Errorf("other group must not receive the event, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe_RemovesFromEveryGroupAndUpdatesPresence(t *testing.T) {
	hub := NewHub(staticSnapshot(0), nil)
	ctx := context.Background()

	multi := NewSubscriber("c1", 16)
	stay := NewSubscriber("c2", 16)
	if _, err := hub.Subscribe(ctx, multi, "r1", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Subscribe(ctx, multi, "r2", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Subscribe(ctx, stay, "r1", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	if got := hub.Presence("r1", "2026-03-02", "1"); got != 2 {
		t.Fatalf("presence = %d, want 2", got)
	}

	hub.Unsubscribe(multi)

	if got := hub.Presence("r1", "2026-03-02", "1"); got != 1 {
		t.Errorf("presence after unsubscribe = %d, want 1", got)
	}
	if got := hub.Presence("r2", "2026-03-02", "1"); got != 0 {
		t.Errorf("r2 presence after unsubscribe = %d, want 0", got)
	}

	// remaining subscriber sees the presence drop
	var sawDrop bool
	for i := 0; i < 8; i++ {
		select {
		case e := <-stay.Events():
			if e.Type == events.PresenceCount && e.RoomID == "r1" && e.Presence == 1 {
				sawDrop = true
			}
		case <-time.After(100 * time.Millisecond):
			i = 8
		}
		if sawDrop {
			break
		}
	}
	if !sawDrop {
		t.Error("remaining subscriber never saw the presence drop")
	}

	// double unsubscribe is harmless
	hub.Unsubscribe(multi)
}

func TestPublish_SlowSubscriberIsSkippedNotBlocking(t *testing.T) {
	hub := NewHub(staticSnapshot(0), nil)
	slow := NewSubscriber("c1", 1)
	if _, err := hub.Subscribe(context.Background(), slow, "r1", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	// queue now holds the snapshot; everything further must drop, not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(events.Event{Type: events.SeatClaimed, RoomID: "r1", Date: "2026-03-02", Slot: "1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_RunConsumesBus(t *testing.T) {
	hub := NewHub(staticSnapshot(0), nil)
	bus := events.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx, bus) }()

	sub := NewSubscriber("c1", 8)
	if _, err := hub.Subscribe(ctx, sub, "r1", "2026-03-02", "1"); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, sub) // snapshot
	nextEvent(t, sub) // presence

	if err := bus.Publish(ctx, events.Event{Type: events.SessionClosed, RoomID: "r1", Date: "2026-03-02", Slot: "1"}); err != nil {
		t.Fatal(err)
	}
	if e := nextEvent(t, sub); e.Type != events.SessionClosed {
		t.Errorf("got %s, want session_closed", e.Type)
	}
}
