package claims

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"classroom/internal/attendance"
	"classroom/internal/events"
	"classroom/internal/rooms"
	"classroom/internal/roster"
	"classroom/internal/sessions"
	"classroom/internal/timing"
)

type fixture struct {
	coord    *Coordinator
	sessions *sessions.Service
	records  *attendance.MemStore
	session  *sessions.Session
	opened   time.Time
}

// newFixture opens a session for a 2x3 room at a fixed T0 and returns a
// coordinator whose clock starts at T0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog := rooms.NewMemCatalog()
	if err := catalog.Put(ctx, rooms.Room{ID: "r1", Rows: 2, SeatsPerRow: 3, Unavailable: []string{"B1"}}); err != nil {
		t.Fatal(err)
	}

	enrolled := roster.NewMemStore()
	for i := 1; i <= 6; i++ {
		enrolled.Enroll("courseA", roster.Student{
			ID:   fmt.Sprintf("s%d", i),
			Code: fmt.Sprintf("202100%d", i),
			Name: fmt.Sprintf("Student %d", i),
		})
	}

	records := attendance.NewMemStore()
	bus := events.NewInMemory(1024)
	sessSvc := sessions.NewService(sessions.NewMemStore(), records, enrolled, bus)

	opened := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessSvc.SetClock(func() time.Time { return opened })
	sess, err := sessSvc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}

	coord := NewCoordinator(sessSvc, catalog, NewMemStore(), records, enrolled,
		timing.Default(), bus, nil)
	coord.SetClock(func() time.Time { return opened.Add(5 * time.Minute) })

	return &fixture{coord: coord, sessions: sessSvc, records: records, session: sess, opened: opened}
}

func (f *fixture) at(d time.Duration) {
	f.coord.SetClock(func() time.Time { return f.opened.Add(d) })
}

func TestClaim_ConcurrentSameSeat_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Claim(ctx, f.session.ID, fmt.Sprintf("s%d", i+1), "A1")
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var taken *SeatTakenError
		if !errors.As(err, &taken) {
			t.Fatalf("loser got %v, want SeatTakenError", err)
		}
		losers++
	}
	if winners != 1 || losers != n-1 {
		t.Fatalf("want 1 winner and %d losers, got %d/%d", n-1, winners, losers)
	}

	checked, _ := f.sessions.Get(ctx, f.session.ID)
	if checked.CheckedIn != 1 {
		t.Errorf("checked_in = %d, want 1", checked.CheckedIn)
	}
}

func TestClaim_ConcurrentSameStudent_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seats := []string{"A1", "A2", "A3", "B2", "B3"}
	errs := make([]error, len(seats))
	var wg sync.WaitGroup
	for i, seat := range seats {
		wg.Add(1)
		go func(i int, seat string) {
			defer wg.Done()
			_, errs[i] = f.coord.Claim(ctx, f.session.ID, "s1", seat)
		}(i, seat)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var already *AlreadyClaimedError
		if !errors.As(err, &already) {
			t.Fatalf("loser got %v, want AlreadyClaimedError", err)
		}
	}
	if winners != 1 {
		t.Fatalf("want exactly 1 winning claim, got %d", winners)
	}
}

func TestClaim_SeatTakenCarriesHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.Claim(ctx, f.session.ID, "s1", "A1"); err != nil {
		t.Fatal(err)
	}
	_, err := f.coord.Claim(ctx, f.session.ID, "s2", "A1")
	var taken *SeatTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("want SeatTakenError, got %v", err)
	}
	if taken.HolderID != "s1" {
		t.Errorf("holder = %q, want s1", taken.HolderID)
	}
}

func TestClaim_InvalidOrBlockedSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, seat := range []string{"C1", "A9", "zz", "B1"} {
		if _, err := f.coord.Claim(ctx, f.session.ID, "s1", seat); !errors.Is(err, ErrSeatUnavailable) {
			t.Errorf("claim %q: got %v, want ErrSeatUnavailable", seat, err)
		}
	}
}

func TestClaim_TimingStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.at(5 * time.Minute)
	if _, err := f.coord.Claim(ctx, f.session.ID, "s1", "A1"); err != nil {
		t.Fatal(err)
	}
	rec, _ := f.records.Get(ctx, "s1", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Present {
		t.Errorf("5m claim: status %s, want present", rec.Status)
	}

	f.at(20 * time.Minute)
	if _, err := f.coord.Claim(ctx, f.session.ID, "s2", "B2"); err != nil {
		t.Fatal(err)
	}
	rec, _ = f.records.Get(ctx, "s2", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Late {
		t.Errorf("20m claim: status %s, want late", rec.Status)
	}
}

func TestClaim_WindowClosedMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.at(90 * time.Minute)
	if _, err := f.coord.Claim(ctx, f.session.ID, "s1", "A1"); !errors.Is(err, ErrCheckInWindowClosed) {
		t.Fatalf("got %v, want ErrCheckInWindowClosed", err)
	}

	m, err := f.coord.SeatMapFor(ctx, f.session)
	if err != nil {
		t.Fatal(err)
	}
	if m.Occupied != 0 {
		t.Errorf("occupancy mutated by rejected claim: %d", m.Occupied)
	}
	sess, _ := f.sessions.Get(ctx, f.session.ID)
	if sess.CheckedIn != 0 {
		t.Errorf("checked_in mutated by rejected claim: %d", sess.CheckedIn)
	}
	rec, _ := f.records.Get(ctx, "s1", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Absent {
		t.Errorf("record mutated by rejected claim: %s", rec.Status)
	}
}

func TestClaim_ClosedSessionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sessions.Close(ctx, f.session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.Claim(ctx, f.session.ID, "s1", "A1"); !errors.Is(err, sessions.ErrNotActive) {
		t.Errorf("got %v, want ErrNotActive", err)
	}
}

func TestRelease_FreesSeatForReclaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.Claim(ctx, f.session.ID, "s1", "A1"); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Release(ctx, f.session.ID, "A1", "s1"); err != nil {
		t.Fatal(err)
	}

	// releasing again is a no-op success
	if err := f.coord.Release(ctx, f.session.ID, "A1", "s1"); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}

	sess, _ := f.sessions.Get(ctx, f.session.ID)
	if sess.CheckedIn != 0 {
		t.Errorf("checked_in = %d after release, want 0", sess.CheckedIn)
	}
	rec, _ := f.records.Get(ctx, "s1", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Absent || rec.ClaimID != nil {
		t.Errorf("record should revert to absent with no claim link: %+v", rec)
	}

	// a different student can now take the seat
	if _, err := f.coord.Claim(ctx, f.session.ID, "s2", "A1"); err != nil {
		t.Fatalf("re-claim after release: %v", err)
	}
}

// Full walk through the spec scenario: 2x3 room, claims at +5m and +20m,
// a lost race in between, then a release.
func TestScenario_TwoRowRoom(t *testing.T) {
	ctx := context.Background()
	catalog := rooms.NewMemCatalog()
	if err := catalog.Put(ctx, rooms.Room{ID: "r1", Rows: 2, SeatsPerRow: 3}); err != nil {
		t.Fatal(err)
	}
	enrolled := roster.NewMemStore()
	enrolled.Enroll("courseA", roster.Student{ID: "s1", Name: "One"})
	enrolled.Enroll("courseA", roster.Student{ID: "s2", Name: "Two"})
	records := attendance.NewMemStore()
	bus := events.NewInMemory(64)
	sessSvc := sessions.NewService(sessions.NewMemStore(), records, enrolled, bus)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessSvc.SetClock(func() time.Time { return t0 })
	sess, err := sessSvc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	coord := NewCoordinator(sessSvc, catalog, NewMemStore(), records, enrolled, timing.Default(), bus, nil)

	// S1 claims A1 at T0+5m -> present
	coord.SetClock(func() time.Time { return t0.Add(5 * time.Minute) })
	if _, err := coord.Claim(ctx, sess.ID, "s1", "A1"); err != nil {
		t.Fatal(err)
	}
	rec, _ := records.Get(ctx, "s1", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Present {
		t.Fatalf("S1 status %s, want present", rec.Status)
	}

	// S2 tries A1 at T0+6m -> SeatTakenError, map unchanged
	coord.SetClock(func() time.Time { return t0.Add(6 * time.Minute) })
	var taken *SeatTakenError
	if _, err := coord.Claim(ctx, sess.ID, "s2", "A1"); !errors.As(err, &taken) {
		t.Fatalf("want SeatTakenError, got %v", err)
	}
	m, _ := coord.SeatMapFor(ctx, sess)
	if m.Occupied != 1 {
		t.Fatalf("map occupied %d, want 1", m.Occupied)
	}

	// S2 claims B2 at T0+20m -> late, checkedIn=2
	coord.SetClock(func() time.Time { return t0.Add(20 * time.Minute) })
	if _, err := coord.Claim(ctx, sess.ID, "s2", "B2"); err != nil {
		t.Fatal(err)
	}
	rec, _ = records.Get(ctx, "s2", "courseA", "2026-03-02", "1")
	if rec.Status != attendance.Late {
		t.Fatalf("S2 status %s, want late", rec.Status)
	}
	got, _ := sessSvc.Get(ctx, sess.ID)
	if got.CheckedIn != 2 {
		t.Fatalf("checked_in %d, want 2", got.CheckedIn)
	}

	// S1 releases A1 -> available, checkedIn=1
	if err := coord.Release(ctx, sess.ID, "A1", "s1"); err != nil {
		t.Fatal(err)
	}
	m, _ = coord.SeatMapFor(ctx, sess)
	for _, seat := range m.Seats {
		if seat.Code == "A1" && seat.Status != rooms.SeatAvailable {
			t.Errorf("A1 status %s, want available", seat.Status)
		}
	}
	got, _ = sessSvc.Get(ctx, sess.ID)
	if got.CheckedIn != 1 {
		t.Fatalf("checked_in %d after release, want 1", got.CheckedIn)
	}
}

type flakyRecords struct {
	attendance.Store
	failNext bool
}

func (f *flakyRecords) Upsert(ctx context.Context, rec attendance.Record) error {
	if f.failNext {
		f.failNext = false
		return errors.New("storage write failed")
	}
	return f.Store.Upsert(ctx, rec)
}

// A claim whose record write fails must not leave the seat held.
func TestClaim_FailedRecordWriteFreesSeat(t *testing.T) {
	ctx := context.Background()
	catalog := rooms.NewMemCatalog()
	if err := catalog.Put(ctx, rooms.Room{ID: "r1", Rows: 2, SeatsPerRow: 3}); err != nil {
		t.Fatal(err)
	}
	enrolled := roster.NewMemStore()
	enrolled.Enroll("courseA", roster.Student{ID: "s1", Name: "One"})
	enrolled.Enroll("courseA", roster.Student{ID: "s2", Name: "Two"})
	records := &flakyRecords{Store: attendance.NewMemStore()}
	bus := events.NewInMemory(64)
	sessSvc := sessions.NewService(sessions.NewMemStore(), records, enrolled, bus)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessSvc.SetClock(func() time.Time { return t0 })
	sess, err := sessSvc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	coord := NewCoordinator(sessSvc, catalog, NewMemStore(), records, enrolled, timing.Default(), bus, nil)
	coord.SetClock(func() time.Time { return t0.Add(5 * time.Minute) })

	records.failNext = true
	if _, err := coord.Claim(ctx, sess.ID, "s1", "A1"); err == nil {
		t.Fatal("claim should surface the record write failure")
	}

	got, _ := sessSvc.Get(ctx, sess.ID)
	if got.CheckedIn != 0 {
		t.Errorf("checked_in = %d after failed claim, want 0", got.CheckedIn)
	}
	m, err := coord.SeatMapFor(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if m.Occupied != 0 {
		t.Errorf("occupied = %d after failed claim, want 0", m.Occupied)
	}

	// the seat is claimable again
	if _, err := coord.Claim(ctx, sess.ID, "s2", "A1"); err != nil {
		t.Fatalf("seat should be free after the failed claim unwound: %v", err)
	}
}

// Snapshot consistency: occupied seats in the map equal the session counter.
func TestSeatMap_MatchesCheckedInCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, seat := range []string{"A1", "A2", "B2"} {
		if _, err := f.coord.Claim(ctx, f.session.ID, fmt.Sprintf("s%d", i+1), seat); err != nil {
			t.Fatal(err)
		}
	}
	m, err := f.coord.SeatMapFor(ctx, f.session)
	if err != nil {
		t.Fatal(err)
	}
	sess, _ := f.sessions.Get(ctx, f.session.ID)
	if m.Occupied != sess.CheckedIn {
		t.Errorf("map occupied %d != checked_in %d", m.Occupied, sess.CheckedIn)
	}
}
