package claims

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"classroom/internal/attendance"
	"classroom/internal/events"
	"classroom/internal/metrics"
	"classroom/internal/rooms"
	"classroom/internal/roster"
	"classroom/internal/sessions"
	"classroom/internal/timing"
)

// Coordinator serializes seat claims for a session. The pre-checks against
// the live claim set are best effort; the store's uniqueness guarantee on
// Insert is what actually decides a race.
type Coordinator struct {
	sessions *sessions.Service
	catalog  rooms.Catalog
	store    Store
	records  attendance.Store
	roster   roster.Store
	policy   timing.Policy
	bus      events.Bus
	metrics  *metrics.Set
	now      func() time.Time
}

// NewCoordinator wires the claim coordinator.
func NewCoordinator(sess *sessions.Service, catalog rooms.Catalog, s Store,
	records attendance.Store, r roster.Store, policy timing.Policy,
	bus events.Bus, m *metrics.Set) *Coordinator {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Coordinator{
		sessions: sess,
		catalog:  catalog,
		store:    s,
		records:  records,
		roster:   r,
		policy:   policy,
		bus:      bus,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Claim reserves seatCode for studentID in the session. Exactly one of any
// set of concurrent claims for the same seat succeeds; the losers get
// *SeatTakenError. A rejected check-in window fails before anything mutates.
func (c *Coordinator) Claim(ctx context.Context, sessionID, studentID, seatCode string) (*Claim, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != sessions.Active || sess.ActivatedAt == nil {
		c.count("session_not_active")
		return nil, sessions.ErrNotActive
	}

	room, err := c.catalog.Get(ctx, sess.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasSeat(seatCode) || room.SeatBlocked(seatCode) {
		c.count("seat_unavailable")
		return nil, ErrSeatUnavailable
	}

	now := c.now()
	status := c.policy.Classify(now.Sub(*sess.ActivatedAt))
	if status == timing.Rejected {
		c.count("window_closed")
		return nil, ErrCheckInWindowClosed
	}

	claim := Claim{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		RoomID:    sess.RoomID,
		CourseID:  sess.CourseID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		SeatCode:  seatCode,
		StudentID: studentID,
		ClaimedAt: now,
	}
	if err := c.store.Insert(ctx, claim); err != nil {
		return nil, c.remapInsertErr(ctx, sess.ID, studentID, seatCode, err)
	}

	record := attendance.Record{
		StudentID: studentID,
		CourseID:  sess.CourseID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		Status:    attendance.Status(status),
		CheckInAt: &now,
		Method:    "seat_claim",
		ClaimID:   &claim.ID,
	}
	if err := c.records.Upsert(ctx, record); err != nil {
		c.unwind(ctx, claim)
		return nil, err
	}
	checkedIn, err := c.sessions.IncrementCheckedIn(ctx, sess.ID, 1)
	if err != nil {
		c.unwind(ctx, claim)
		return nil, err
	}
	c.count("ok")

	c.publish(ctx, events.Event{
		Type:      events.SeatClaimed,
		RoomID:    sess.RoomID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		SessionID: sess.ID,
		SeatCode:  seatCode,
		StudentID: studentID,
		Status:    string(status),
		CheckedIn: checkedIn,
		At:        now,
	})
	return &claim, nil
}

func (c *Coordinator) remapInsertErr(ctx context.Context, sessionID, studentID, seatCode string, err error) error {
	switch {
	case errors.Is(err, errSeatConflict):
		c.count("seat_taken")
		taken := &SeatTakenError{SeatCode: seatCode}
		if holder, herr := c.store.ActiveBySeat(ctx, sessionID, seatCode); herr == nil && holder != nil {
			taken.HolderID = holder.StudentID
		}
		return taken
	case errors.Is(err, errStudentConflict):
		c.count("already_claimed")
		already := &AlreadyClaimedError{StudentID: studentID}
		if held, herr := c.store.ActiveByStudent(ctx, sessionID, studentID); herr == nil && held != nil {
			already.SeatCode = held.SeatCode
		}
		return already
	}
	return err
}

// unwind releases a claim whose follow-up writes failed, so a seat never
// stays held without a matching record and counter.
func (c *Coordinator) unwind(ctx context.Context, cl Claim) {
	if err := c.records.RevertCheckIn(ctx, cl.ID); err != nil {
		log.Printf("claims: unwind revert %s failed: %v", cl.ID, err)
	}
	if _, err := c.store.Release(ctx, cl.SessionID, cl.SeatCode, cl.StudentID, c.now()); err != nil {
		log.Printf("claims: unwind release %s failed: %v", cl.ID, err)
	}
}

// Release frees the student's claim on seatCode. Releasing a seat with no
// live claim is a no-op success. The attendance record linked to the claim
// reverts to absent through its stored claim id.
func (c *Coordinator) Release(ctx context.Context, sessionID, seatCode, studentID string) error {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	now := c.now()
	released, err := c.store.Release(ctx, sessionID, seatCode, studentID, now)
	if err != nil {
		return err
	}
	if released == nil {
		return nil // already free; release is idempotent
	}

	if err := c.records.RevertCheckIn(ctx, released.ID); err != nil {
		return err
	}
	checkedIn, err := c.sessions.IncrementCheckedIn(ctx, sessionID, -1)
	if err != nil {
		return err
	}

	c.publish(ctx, events.Event{
		Type:      events.SeatReleased,
		RoomID:    sess.RoomID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		SessionID: sess.ID,
		SeatCode:  seatCode,
		StudentID: studentID,
		CheckedIn: checkedIn,
		At:        now,
	})
	return nil
}

// SeatMapFor renders the room grid overlaid with the session's committed
// occupancy. Reads never block claims.
func (c *Coordinator) SeatMapFor(ctx context.Context, sess *sessions.Session) (*rooms.SeatMap, error) {
	room, err := c.catalog.Get(ctx, sess.RoomID)
	if err != nil {
		return nil, err
	}
	live, err := c.store.ActiveBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	occupants := make(map[string]rooms.Occupant, len(live))
	for _, cl := range live {
		occ := rooms.Occupant{StudentID: cl.StudentID}
		if st, err := c.roster.Lookup(ctx, cl.StudentID); err == nil && st != nil {
			occ.Name = st.Name
		}
		occupants[cl.SeatCode] = occ
	}
	m := rooms.BuildSeatMap(room, occupants)
	return &m, nil
}

func (c *Coordinator) publish(ctx context.Context, e events.Event) {
	if err := c.bus.Publish(ctx, e); err != nil {
		log.Printf("claims: publish %s failed: %v", e.Type, err)
	}
}

func (c *Coordinator) count(outcome string) {
	c.metrics.ClaimsTotal.WithLabelValues(outcome).Inc()
}
