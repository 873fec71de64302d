package realtime

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"classroom/internal/events"
	"classroom/internal/metrics"
)

// SnapshotFunc builds the current seat-map snapshot event for a group key.
// It runs under the hub lock during Subscribe so the snapshot and the event
// stream line up without a gap.
type SnapshotFunc func(ctx context.Context, roomID, date, slot string) (*events.Event, error)

// Hub is the fan-out registry: subscriber groups keyed by (room, date, slot).
// It is constructed at process start and injected; there is no package-level
// state. Delivery is best-effort and at-least-once; a client that missed
// events re-subscribes and gets a fresh snapshot.
type Hub struct {
	snapshot SnapshotFunc
	metrics  *metrics.Set

	mu      sync.RWMutex
	groups  map[string]map[*Subscriber]struct{}
	keysFor map[*Subscriber]map[string]struct{}
}

// NewHub creates a hub using snapshot for subscribe-time seat maps.
func NewHub(snapshot SnapshotFunc, m *metrics.Set) *Hub {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Hub{
		snapshot: snapshot,
		metrics:  m,
		groups:   make(map[string]map[*Subscriber]struct{}),
		keysFor:  make(map[*Subscriber]map[string]struct{}),
	}
}

// Subscribe adds sub to the group for (room, date, slot), queues the current
// snapshot as its first event, and broadcasts the new presence count to the
// whole group. Returns the presence count.
func (h *Hub) Subscribe(ctx context.Context, sub *Subscriber, roomID, date, slot string) (int, error) {
	key := events.GroupKey(roomID, date, slot)

	h.mu.Lock()
	snap, err := h.snapshot(ctx, roomID, date, slot)
	if err != nil {
		h.mu.Unlock()
		return 0, err
	}
	if h.groups[key] == nil {
		h.groups[key] = make(map[*Subscriber]struct{})
	}
	h.groups[key][sub] = struct{}{}
	if h.keysFor[sub] == nil {
		h.keysFor[sub] = make(map[string]struct{})
	}
	h.keysFor[sub][key] = struct{}{}
	if snap != nil {
		if !sub.offer(*snap) {
			h.metrics.EventsDropped.Inc()
		}
	}
	presence := len(h.groups[key])
	h.mu.Unlock()

	h.metrics.WSConnections.Inc()
	h.broadcastPresence(roomID, date, slot, presence)
	return presence, nil
}

// Unsubscribe removes sub from every group it joined and broadcasts updated
// presence counts. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	keys := h.keysFor[sub]
	delete(h.keysFor, sub)
	type update struct {
		roomID, date, slot string
		presence           int
	}
	var updates []update
	for key := range keys {
		group := h.groups[key]
		if group == nil {
			continue
		}
		delete(group, sub)
		if len(group) == 0 {
			delete(h.groups, key)
		}
		roomID, date, slot := splitKey(key)
		updates = append(updates, update{roomID, date, slot, len(group)})
	}
	h.mu.Unlock()

	if len(keys) > 0 {
		h.metrics.WSConnections.Dec()
	}
	for _, u := range updates {
		h.broadcastPresence(u.roomID, u.date, u.slot, u.presence)
	}
}

// Publish fans an event out to its group. Slow subscribers are skipped, not
// waited for; the drop is counted and logged.
func (h *Hub) Publish(e events.Event) {
	h.mu.RLock()
	group := h.groups[e.Key()]
	subs := make([]*Subscriber, 0, len(group))
	for sub := range group {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.offer(e) {
			h.metrics.EventsDropped.Inc()
			log.Printf("realtime: dropped %s for slow subscriber %s", e.Type, sub.ID())
		}
	}
}

// Presence returns the current subscriber count for a group.
func (h *Hub) Presence(roomID, date, slot string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[events.GroupKey(roomID, date, slot)])
}

// Run consumes the event bus and fans every event out until ctx is done.
func (h *Hub) Run(ctx context.Context, bus events.Bus) error {
	ch, err := bus.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) broadcastPresence(roomID, date, slot string, presence int) {
	h.Publish(events.Event{
		Type:     events.PresenceCount,
		RoomID:   roomID,
		Date:     date,
		Slot:     slot,
		Presence: presence,
		At:       time.Now().UTC(),
	})
}

func splitKey(key string) (roomID, date, slot string) {
	roomID, rest, _ := strings.Cut(key, "|")
	date, slot, _ = strings.Cut(rest, "|")
	return roomID, date, slot
}
