package attendance

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes a record, idempotently keyed by the attendance tuple.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, course_id, session_date, slot, status, checkin_at, method, claim_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT (student_id, course_id, session_date, slot) DO UPDATE SET
			status = EXCLUDED.status,
			checkin_at = EXCLUDED.checkin_at,
			method = EXCLUDED.method,
			claim_id = EXCLUDED.claim_id,
			updated_at = NOW()
	`, rec.ID, rec.StudentID, rec.CourseID, rec.Date, rec.Slot, rec.Status, rec.CheckInAt, rec.Method, rec.ClaimID)
	return err
}

// SeedAbsent inserts absent rows for the roster, skipping students that
// already have a record for the tuple.
func (r *Repository) SeedAbsent(ctx context.Context, courseID, date, slot string, studentIDs []string) error {
	for _, sid := range studentIDs {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO attendance_records (id, student_id, course_id, session_date, slot, status)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (student_id, course_id, session_date, slot) DO NOTHING
		`, uuid.NewString(), sid, courseID, date, slot, Absent)
		if err != nil {
			return err
		}
	}
	return nil
}

// RevertCheckIn resets the record linked to claimID back to absent.
func (r *Repository) RevertCheckIn(ctx context.Context, claimID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = $2, checkin_at = NULL, method = '', claim_id = NULL, updated_at = NOW()
		WHERE claim_id = $1
	`, claimID, Absent)
	return err
}

// Counts aggregates statuses for one session occurrence.
func (r *Repository) Counts(ctx context.Context, courseID, date, slot string) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM attendance_records
		WHERE course_id = $1 AND session_date = $2 AND slot = $3
		GROUP BY status
	`, courseID, date, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// Get fetches one record by tuple, nil when absent.
func (r *Repository) Get(ctx context.Context, studentID, courseID, date, slot string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, course_id, session_date, slot, status, checkin_at, method, claim_id, updated_at
		FROM attendance_records
		WHERE student_id = $1 AND course_id = $2 AND session_date = $3 AND slot = $4
	`, studentID, courseID, date, slot)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.Date, &rec.Slot,
		&rec.Status, &rec.CheckInAt, &rec.Method, &rec.ClaimID, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// MemStore keeps records in memory for dev mode and tests.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]Record // keyed by tuple
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]Record)}
}

func tupleKey(studentID, courseID, date, slot string) string {
	return studentID + "|" + courseID + "|" + date + "|" + slot
}

func (m *MemStore) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tupleKey(rec.StudentID, rec.CourseID, rec.Date, rec.Slot)
	if existing, ok := m.rows[key]; ok {
		rec.ID = existing.ID
	} else if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = time.Now().UTC()
	m.rows[key] = rec
	return nil
}

func (m *MemStore) SeedAbsent(_ context.Context, courseID, date, slot string, studentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sid := range studentIDs {
		key := tupleKey(sid, courseID, date, slot)
		if _, ok := m.rows[key]; ok {
			continue
		}
		m.rows[key] = Record{
			ID:        uuid.NewString(),
			StudentID: sid,
			CourseID:  courseID,
			Date:      date,
			Slot:      slot,
			Status:    Absent,
			UpdatedAt: time.Now().UTC(),
		}
	}
	return nil
}

func (m *MemStore) RevertCheckIn(_ context.Context, claimID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.rows {
		if rec.ClaimID != nil && *rec.ClaimID == claimID {
			rec.Status = Absent
			rec.CheckInAt = nil
			rec.Method = ""
			rec.ClaimID = nil
			rec.UpdatedAt = time.Now().UTC()
			m.rows[key] = rec
		}
	}
	return nil
}

func (m *MemStore) Counts(_ context.Context, courseID, date, slot string) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Status]int)
	for _, rec := range m.rows {
		if rec.CourseID == courseID && rec.Date == date && rec.Slot == slot {
			out[rec.Status]++
		}
	}
	return out, nil
}

func (m *MemStore) Get(_ context.Context, studentID, courseID, date, slot string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[tupleKey(studentID, courseID, date, slot)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
