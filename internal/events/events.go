package events

import (
	"fmt"
	"time"

	"classroom/internal/rooms"
)

// Type names a realtime event pushed to subscribers.
type Type string

const (
	SeatClaimed     Type = "seat_claimed"
	SeatReleased    Type = "seat_released"
	SessionOpened   Type = "session_opened"
	SessionClosed   Type = "session_closed"
	PresenceCount   Type = "presence_count_changed"
	SeatMapSnapshot Type = "seat_map_snapshot"
)

// Event is the wire payload broadcast to every subscriber of a
// (room, date, slot) group. Fields beyond the key are set per type.
type Event struct {
	Type      Type           `json:"type"`
	RoomID    string         `json:"room_id"`
	Date      string         `json:"date"`
	Slot      string         `json:"slot"`
	SessionID string         `json:"session_id,omitempty"`
	SeatCode  string         `json:"seat_code,omitempty"`
	StudentID string         `json:"student_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	CheckedIn int            `json:"checked_in,omitempty"`
	Presence  int            `json:"presence,omitempty"`
	SeatMap   *rooms.SeatMap `json:"seat_map,omitempty"`
	At        time.Time      `json:"at"`
}

// Key groups subscribers: everyone watching one room/date/slot.
func (e Event) Key() string {
	return GroupKey(e.RoomID, e.Date, e.Slot)
}

// GroupKey builds the subscriber-group key for a room occurrence.
func GroupKey(roomID, date, slot string) string {
	return fmt.Sprintf("%s|%s|%s", roomID, date, slot)
}
