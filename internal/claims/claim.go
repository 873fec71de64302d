package claims

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSeatUnavailable rejects seat codes outside the grid or blocked by
	// the room template.
	ErrSeatUnavailable = errors.New("seat is unavailable")
	// ErrCheckInWindowClosed rejects claims past the late window. Distinct
	// from seat availability failures; nothing is mutated.
	ErrCheckInWindowClosed = errors.New("check-in window has closed")

	// errSeatConflict and errStudentConflict are the store-level uniqueness
	// signals the coordinator remaps to the typed errors below.
	errSeatConflict    = errors.New("seat uniqueness violated")
	errStudentConflict = errors.New("student uniqueness violated")
)

// SeatTakenError reports a claim that lost the race for a seat, carrying the
// current holder so the caller can render it.
type SeatTakenError struct {
	SeatCode string
	HolderID string
}

func (e *SeatTakenError) Error() string {
	return fmt.Sprintf("seat %s is already taken", e.SeatCode)
}

// AlreadyClaimedError reports a student who already holds a seat in the
// session.
type AlreadyClaimedError struct {
	StudentID string
	SeatCode  string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("student %s already holds seat %s", e.StudentID, e.SeatCode)
}

// Claim is one student's exclusive hold on one seat for one session.
// Release is soft: ReleasedAt is set and the row stays for history.
type Claim struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	RoomID     string     `json:"room_id"`
	CourseID   string     `json:"course_id"`
	Date       string     `json:"date"`
	Slot       string     `json:"slot"`
	SeatCode   string     `json:"seat_code"`
	StudentID  string     `json:"student_id"`
	ClaimedAt  time.Time  `json:"claimed_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// Store persists seat claims. Insert is the serialization point: the
// storage layer's uniqueness guarantees, not the coordinator's pre-checks,
// decide claim races. Insert returns errSeatConflict or errStudentConflict
// when a live claim already covers the seat or the student.
type Store interface {
	Insert(ctx context.Context, c Claim) error
	// Release marks the live claim for (session, seat, student) released and
	// returns it. Returns (nil, nil) when no live claim matches, so release
	// stays idempotent.
	Release(ctx context.Context, sessionID, seatCode, studentID string, at time.Time) (*Claim, error)
	// ActiveBySession lists live claims for a session.
	ActiveBySession(ctx context.Context, sessionID string) ([]Claim, error)
	// ActiveBySeat returns the live claim holding a seat, nil when free.
	ActiveBySeat(ctx context.Context, sessionID, seatCode string) (*Claim, error)
	// ActiveByStudent returns the student's live claim, nil when none.
	ActiveByStudent(ctx context.Context, sessionID, studentID string) (*Claim, error)
}
