package sessions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classroom/internal/attendance"
	"classroom/internal/events"
	"classroom/internal/roster"
	"classroom/internal/store"
)

// Service is the session lifecycle manager. Opens are serialized per
// (course, date, slot) so concurrent "start class" requests cannot create
// duplicate sessions.
type Service struct {
	store   Store
	records attendance.Store
	roster  roster.Store
	bus     events.Bus
	locks   *store.KeyedMutex
	now     func() time.Time
}

// NewService wires the lifecycle manager.
func NewService(s Store, records attendance.Store, r roster.Store, bus events.Bus) *Service {
	return &Service{
		store:   s,
		records: records,
		roster:  r,
		bus:     bus,
		locks:   store.NewKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Open creates or re-activates the session for (course, date, slot). Opening
// an already active session is an idempotent no-op; a closed session cannot
// be reopened. New sessions start active with the roster seeded absent.
func (s *Service) Open(ctx context.Context, courseID, roomID, date, slot string) (*Session, error) {
	if courseID == "" || roomID == "" {
		return nil, fmt.Errorf("course and room required")
	}
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	if slot == "" {
		slot = "1"
	}

	unlock := s.locks.Lock(courseID + "|" + date + "|" + slot)
	defer unlock()

	existing, err := s.store.GetByKey(ctx, courseID, date, slot)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if existing != nil {
		switch existing.State {
		case Active:
			return existing, nil
		case Closed:
			return nil, ErrClosed
		case Scheduled:
			next, err := transition(ctx, existing.State, eventOpen)
			if err != nil {
				return nil, err
			}
			now := s.now()
			existing.State = next
			existing.ActivatedAt = &now
			if err := s.seedRoster(ctx, existing); err != nil {
				return nil, err
			}
			if err := s.store.Update(ctx, *existing); err != nil {
				return nil, err
			}
			s.publish(ctx, events.SessionOpened, *existing)
			return existing, nil
		}
	}

	now := s.now()
	sess := Session{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		RoomID:      roomID,
		Date:        date,
		Slot:        slot,
		State:       Active,
		ActivatedAt: &now,
		CreatedAt:   now,
	}
	if err := s.seedRoster(ctx, &sess); err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionOpened, sess)
	return &sess, nil
}

func (s *Service) seedRoster(ctx context.Context, sess *Session) error {
	students, err := s.roster.ActiveStudents(ctx, sess.CourseID)
	if err != nil {
		return err
	}
	sess.TotalStudents = len(students)
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	return s.records.SeedAbsent(ctx, sess.CourseID, sess.Date, sess.Slot, ids)
}

// Close moves an active session to its terminal state.
func (s *Service) Close(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.Key())
	defer unlock()

	// re-read under the lock in case a concurrent close won
	sess, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := transition(ctx, sess.State, eventClose)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess.State = next
	sess.ClosedAt = &now
	if err := s.store.Update(ctx, *sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionClosed, *sess)
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// GetByKey returns the session for (course, date, slot).
func (s *Service) GetByKey(ctx context.Context, courseID, date, slot string) (*Session, error) {
	return s.store.GetByKey(ctx, courseID, date, slot)
}

// ActiveByRoom returns the active session in a room occurrence, nil when
// the room is idle.
func (s *Service) ActiveByRoom(ctx context.Context, roomID, date, slot string) (*Session, error) {
	return s.store.ActiveByRoom(ctx, roomID, date, slot)
}

// IncrementCheckedIn adjusts the running counter, returning the new value.
func (s *Service) IncrementCheckedIn(ctx context.Context, id string, delta int) (int, error) {
	return s.store.IncrementCheckedIn(ctx, id, delta)
}

// Summary aggregates attendance counts and the derived rate for a session.
type Summary struct {
	SessionID      string  `json:"session_id"`
	State          State   `json:"state"`
	TotalStudents  int     `json:"total_students"`
	CheckedIn      int     `json:"checked_in"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	Excused        int     `json:"excused"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Summarize computes the per-status counts and attendance rate.
func (s *Service) Summarize(ctx context.Context, id string) (*Summary, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.records.Counts(ctx, sess.CourseID, sess.Date, sess.Slot)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		SessionID:     sess.ID,
		State:         sess.State,
		TotalStudents: sess.TotalStudents,
		CheckedIn:     sess.CheckedIn,
		Present:       counts[attendance.Present],
		Late:          counts[attendance.Late],
		Absent:        counts[attendance.Absent],
		Excused:       counts[attendance.Excused],
	}
	if sess.TotalStudents > 0 {
		sum.AttendanceRate = float64(sum.Present+sum.Late) / float64(sess.TotalStudents)
	}
	return sum, nil
}

// CloseExpired closes every active session whose activation is older than
// maxAge and reports how many were closed. Used by the sweeper.
func (s *Service) CloseExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	expired, err := s.store.ActiveBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, sess := range expired {
		if _, err := s.Close(ctx, sess.ID); err != nil {
			log.Printf("sessions: auto-close %s failed: %v", sess.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, sess Session) {
	err := s.bus.Publish(ctx, events.Event{
		Type:      typ,
		RoomID:    sess.RoomID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		SessionID: sess.ID,
		CheckedIn: sess.CheckedIn,
		At:        s.now(),
	})
	if err != nil {
		log.Printf("sessions: publish %s failed: %v", typ, err)
	}
}
