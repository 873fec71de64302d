package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classroom/internal/store"
)

// Store persists reservations. Conflict detection runs in the service over
// the active set; the service serializes writers per room so check-then-act
// stays race free.
type Store interface {
	Insert(ctx context.Context, res Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	Cancel(ctx context.Context, id string) error
	CancelActiveByCourse(ctx context.Context, courseID string) error
	ActiveByRoom(ctx context.Context, roomID string) ([]Reservation, error)
	ActiveByCourse(ctx context.Context, courseID string) ([]Reservation, error)
}

// Service is the room reservation ledger.
type Service struct {
	store Store
	locks *store.KeyedMutex
}

// NewService creates the ledger over a store.
func NewService(s Store) *Service {
	return &Service{store: s, locks: store.NewKeyedMutex()}
}

func validate(res Reservation) error {
	if res.RoomID == "" || res.CourseID == "" {
		return fmt.Errorf("room and course required")
	}
	if res.StartMin < 0 || res.EndMin > 24*60 || res.StartMin >= res.EndMin {
		return fmt.Errorf("invalid interval [%d, %d)", res.StartMin, res.EndMin)
	}
	if !res.Recurring {
		if _, err := time.Parse("2006-01-02", res.Date); err != nil {
			return fmt.Errorf("invalid date %q: %w", res.Date, err)
		}
	}
	return nil
}

// Reserve books the room, failing with *ConflictError when the interval
// collides with an active reservation.
func (s *Service) Reserve(ctx context.Context, res Reservation) (Reservation, error) {
	if err := validate(res); err != nil {
		return Reservation{}, err
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if !res.Recurring {
		d, _ := time.Parse("2006-01-02", res.Date)
		res.Weekday = d.Weekday()
	}
	res.CreatedAt = time.Now().UTC()

	unlock := s.locks.Lock("room:" + res.RoomID)
	defer unlock()

	conflicts, err := s.findConflicts(ctx, res, "")
	if err != nil {
		return Reservation{}, err
	}
	if len(conflicts) > 0 {
		return Reservation{}, &ConflictError{Existing: conflicts[0]}
	}
	if err := s.store.Insert(ctx, res); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Cancel soft-deletes a reservation.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.store.Cancel(ctx, id)
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id string) (*Reservation, error) {
	return s.store.Get(ctx, id)
}

// FindConflicts lists active reservations colliding with candidate,
// optionally skipping excludeID.
func (s *Service) FindConflicts(ctx context.Context, candidate Reservation, excludeID string) ([]Reservation, error) {
	return s.findConflicts(ctx, candidate, excludeID)
}

func (s *Service) findConflicts(ctx context.Context, candidate Reservation, excludeID string) ([]Reservation, error) {
	active, err := s.store.ActiveByRoom(ctx, candidate.RoomID)
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for _, existing := range active {
		if existing.ID == excludeID {
			continue
		}
		if Conflicts(candidate, existing) {
			out = append(out, existing)
		}
	}
	return out, nil
}

// ScheduleFor lists reservations occupying the room on date, recurring ones
// included.
func (s *Service) ScheduleFor(ctx context.Context, roomID, date string) ([]Reservation, error) {
	active, err := s.store.ActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]Reservation, 0, len(active))
	for _, r := range active {
		if r.AppliesOn(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rebind moves a course to a new room/time as one logical operation: all of
// the course's active reservations are cancelled before the new one is
// created, so the course never holds two active bookings.
func (s *Service) Rebind(ctx context.Context, res Reservation) (Reservation, error) {
	if err := validate(res); err != nil {
		return Reservation{}, err
	}
	unlock := s.locks.Lock("course:" + res.CourseID)
	defer unlock()

	if err := s.store.CancelActiveByCourse(ctx, res.CourseID); err != nil {
		return Reservation{}, err
	}
	return s.Reserve(ctx, res)
}

// ActiveByCourse lists the course's live bookings.
func (s *Service) ActiveByCourse(ctx context.Context, courseID string) ([]Reservation, error) {
	return s.store.ActiveByCourse(ctx, courseID)
}
