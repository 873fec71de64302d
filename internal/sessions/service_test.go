package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classroom/internal/attendance"
	"classroom/internal/events"
	"classroom/internal/roster"
)

func newTestService(t *testing.T) (*Service, *roster.MemStore, *attendance.MemStore) {
	t.Helper()
	r := roster.NewMemStore()
	r.Enroll("courseA", roster.Student{ID: "s1", Code: "2021001", Name: "Ada"})
	r.Enroll("courseA", roster.Student{ID: "s2", Code: "2021002", Name: "Ben"})
	r.Enroll("courseA", roster.Student{ID: "s3", Code: "2021003", Name: "Cho"})
	records := attendance.NewMemStore()
	svc := NewService(NewMemStore(), records, r, events.NewInMemory(16))
	return svc, r, records
}

func TestOpen_CreatesActiveSessionWithRosterSeeded(t *testing.T) {
	svc, _, records := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.State != Active {
		t.Errorf("expected active, got %s", sess.State)
	}
	if sess.TotalStudents != 3 {
		t.Errorf("expected roster snapshot 3, got %d", sess.TotalStudents)
	}
	if sess.CheckedIn != 0 {
		t.Errorf("expected checked_in 0, got %d", sess.CheckedIn)
	}

	counts, err := records.Counts(ctx, "courseA", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[attendance.Absent] != 3 {
		t.Errorf("expected 3 seeded absent records, got %d", counts[attendance.Absent])
	}
}

func TestOpen_IsIdempotentForActiveSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("reopen must return the same session: %s vs %s", first.ID, second.ID)
	}
}

func TestOpen_ConcurrentOpensCreateOneSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
			if err != nil {
				t.Errorf("open %d: %v", i, err)
				return
			}
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent opens created different sessions: %s vs %s", ids[0], ids[i])
		}
	}
}

func TestClose_IsTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	closed, err := svc.Close(ctx, sess.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != Closed || closed.ClosedAt == nil {
		t.Errorf("expected closed with timestamp, got %+v", closed)
	}

	if _, err := svc.Close(ctx, sess.ID); !errors.Is(err, ErrClosed) {
		t.Errorf("closing twice should fail with ErrClosed, got %v", err)
	}
	if _, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("reopening a closed slot should fail with ErrClosed, got %v", err)
	}

	// a different slot is a fresh session
	if _, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "2"); err != nil {
		t.Errorf("new slot should open cleanly: %v", err)
	}
}

func TestSummarize_CountsAndRate(t *testing.T) {
	svc, _, records := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if err := records.Upsert(ctx, attendance.Record{
		StudentID: "s1", CourseID: "courseA", Date: "2026-03-02", Slot: "1",
		Status: attendance.Present, CheckInAt: &now,
	}); err != nil {
		t.Fatal(err)
	}
	if err := records.Upsert(ctx, attendance.Record{
		StudentID: "s2", CourseID: "courseA", Date: "2026-03-02", Slot: "1",
		Status: attendance.Late, CheckInAt: &now,
	}); err != nil {
		t.Fatal(err)
	}

	sum, err := svc.Summarize(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Present != 1 || sum.Late != 1 || sum.Absent != 1 {
		t.Errorf("unexpected counts: %+v", sum)
	}
	want := float64(2) / float64(3)
	if sum.AttendanceRate != want {
		t.Errorf("rate = %f, want %f", sum.AttendanceRate, want)
	}
}

func TestCloseExpired_ClosesOnlyOldSessions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })
	old, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "1")
	if err != nil {
		t.Fatal(err)
	}

	svc.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	fresh, err := svc.Open(ctx, "courseA", "r1", "2026-03-02", "2")
	if err != nil {
		t.Fatal(err)
	}

	closed, err := svc.CloseExpired(ctx, 90*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 auto-closed session, got %d", closed)
	}
	got, _ := svc.Get(ctx, old.ID)
	if got.State != Closed {
		t.Errorf("old session should be closed, got %s", got.State)
	}
	got, _ = svc.Get(ctx, fresh.ID)
	if got.State != Active {
		t.Errorf("fresh session should stay active, got %s", got.State)
	}
}
