package attendance

import (
	"context"
	"time"
)

// Status is the attendance outcome stored per (student, course, date, slot).
type Status string

const (
	Absent  Status = "absent"
	Present Status = "present"
	Late    Status = "late"
	Excused Status = "excused"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Absent, Present, Late, Excused:
		return true
	}
	return false
}

// Record is one student's attendance for one session occurrence. Records are
// seeded absent when the session opens and upserted idempotently afterwards;
// ClaimID is the explicit link back to the seat claim that produced the
// check-in, never re-derived from seat codes.
type Record struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	CourseID  string     `json:"course_id"`
	Date      string     `json:"date"`
	Slot      string     `json:"slot"`
	Status    Status     `json:"status"`
	CheckInAt *time.Time `json:"checkin_at,omitempty"`
	Method    string     `json:"method,omitempty"`
	ClaimID   *string    `json:"claim_id,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store persists attendance records.
type Store interface {
	// Upsert writes rec keyed by (student, course, date, slot). Existing rows
	// are overwritten with the new status and check-in specifics.
	Upsert(ctx context.Context, rec Record) error
	// SeedAbsent inserts absent records for every student missing one,
	// leaving existing rows untouched.
	SeedAbsent(ctx context.Context, courseID, date, slot string, studentIDs []string) error
	// RevertCheckIn clears the check-in specifics of the record linked to
	// claimID and sets it back to absent. Unknown claim ids are a no-op.
	RevertCheckIn(ctx context.Context, claimID string) error
	// Counts aggregates statuses for one session occurrence.
	Counts(ctx context.Context, courseID, date, slot string) (map[Status]int, error)
	// Get fetches one record by its tuple.
	Get(ctx context.Context, studentID, courseID, date, slot string) (*Record, error)
}
