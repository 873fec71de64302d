package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrNotActive rejects operations that need an accepting session.
	ErrNotActive = errors.New("session is not active")
	// ErrClosed rejects reopening a terminal session; a new slot is needed.
	ErrClosed = errors.New("session is closed")
)

// State is the lifecycle state of a session.
type State string

const (
	Scheduled State = "scheduled"
	Active    State = "active"
	Closed    State = "closed"
)

// Session is one class occurrence: a course meeting in a room on a date and
// time slot, uniquely keyed by (course, date, slot).
type Session struct {
	ID            string     `json:"id"`
	CourseID      string     `json:"course_id"`
	RoomID        string     `json:"room_id"`
	Date          string     `json:"date"`
	Slot          string     `json:"slot"`
	State         State      `json:"state"`
	TotalStudents int        `json:"total_students"`
	CheckedIn     int        `json:"checked_in"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Key returns the uniqueness tuple.
func (s Session) Key() string {
	return s.CourseID + "|" + s.Date + "|" + s.Slot
}

// lifecycle events
const (
	eventOpen  = "open"
	eventClose = "close"
)

func newLifecycle(current State) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: eventOpen, Src: []string{string(Scheduled)}, Dst: string(Active)},
			{Name: eventClose, Src: []string{string(Active)}, Dst: string(Closed)},
		},
		fsm.Callbacks{},
	)
}

// transition validates and applies a lifecycle event to current.
func transition(ctx context.Context, current State, event string) (State, error) {
	machine := newLifecycle(current)
	if err := machine.Event(ctx, event); err != nil {
		switch current {
		case Closed:
			return current, ErrClosed
		default:
			return current, ErrNotActive
		}
	}
	return State(machine.Current()), nil
}
