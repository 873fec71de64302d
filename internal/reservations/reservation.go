package reservations

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for unknown reservation ids.
var ErrNotFound = errors.New("reservation not found")

// Reservation books a room for a course over a half-open minute interval
// [StartMin, EndMin) on either a single date or a recurring weekday.
// Cancellation is soft: cancelled rows stay for history but never conflict.
type Reservation struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"room_id"`
	CourseID  string       `json:"course_id"`
	Weekday   time.Weekday `json:"weekday"`
	StartMin  int          `json:"start_min"`
	EndMin    int          `json:"end_min"`
	Recurring bool         `json:"recurring"`
	Date      string       `json:"date,omitempty"` // YYYY-MM-DD, empty when recurring
	Cancelled bool         `json:"cancelled,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ConflictError reports a rejected booking together with the reservation it
// collided with, so the caller can show what is in the way.
type ConflictError struct {
	Existing Reservation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %s already reserved by course %s for [%s, %s)",
		e.Existing.RoomID, e.Existing.CourseID,
		minuteClock(e.Existing.StartMin), minuteClock(e.Existing.EndMin))
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps applies the half-open interval rule: touching endpoints do not
// conflict.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// Conflicts reports whether two active reservations for the same room collide.
// A recurring reservation collides with anything on its weekday; two dated
// reservations only collide on the same date.
func Conflicts(a, b Reservation) bool {
	if a.Cancelled || b.Cancelled || a.RoomID != b.RoomID {
		return false
	}
	if !Overlaps(a.StartMin, a.EndMin, b.StartMin, b.EndMin) {
		return false
	}
	if a.Recurring || b.Recurring {
		return a.Weekday == b.Weekday
	}
	return a.Date == b.Date
}

// AppliesOn reports whether the reservation occupies the room on date.
func (r Reservation) AppliesOn(date string) bool {
	if r.Cancelled {
		return false
	}
	if r.Recurring {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return false
		}
		return d.Weekday() == r.Weekday
	}
	return r.Date == date
}
