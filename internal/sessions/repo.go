package sessions

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Store persists sessions.
type Store interface {
	Insert(ctx context.Context, sess Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByKey(ctx context.Context, courseID, date, slot string) (*Session, error)
	// ActiveByRoom finds the active session running in a room occurrence,
	// nil when the room is idle. Used by the fan-out snapshot path.
	ActiveByRoom(ctx context.Context, roomID, date, slot string) (*Session, error)
	Update(ctx context.Context, sess Session) error
	// IncrementCheckedIn adjusts the counter atomically and returns the new value.
	IncrementCheckedIn(ctx context.Context, id string, delta int) (int, error)
	// ActiveBefore lists active sessions activated before cutoff (sweeper).
	ActiveBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionCols = `id, course_id, room_id, session_date, slot, state, total_students, checked_in, activated_at, closed_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CourseID, &s.RoomID, &s.Date, &s.Slot, &s.State,
		&s.TotalStudents, &s.CheckedIn, &s.ActivatedAt, &s.ClosedAt, &s.CreatedAt)
	return s, err
}

func (r *Repository) Insert(ctx context.Context, sess Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, course_id, room_id, session_date, slot, state, total_students, checked_in, activated_at, closed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sess.ID, sess.CourseID, sess.RoomID, sess.Date, sess.Slot, sess.State,
		sess.TotalStudents, sess.CheckedIn, sess.ActivatedAt, sess.ClosedAt, sess.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (r *Repository) GetByKey(ctx context.Context, courseID, date, slot string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE course_id = $1 AND session_date = $2 AND slot = $3
	`, courseID, date, slot)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (r *Repository) ActiveByRoom(ctx context.Context, roomID, date, slot string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE room_id = $1 AND session_date = $2 AND slot = $3 AND state = $4
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID, date, slot, Active)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (r *Repository) Update(ctx context.Context, sess Session) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET state = $2, total_students = $3, activated_at = $4, closed_at = $5
		WHERE id = $1
	`, sess.ID, sess.State, sess.TotalStudents, sess.ActivatedAt, sess.ClosedAt)
	return err
}

func (r *Repository) IncrementCheckedIn(ctx context.Context, id string, delta int) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET checked_in = GREATEST(checked_in + $2, 0)
		WHERE id = $1
		RETURNING checked_in
	`, id, delta)
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

func (r *Repository) ActiveBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE state = $1 AND activated_at < $2
	`, Active, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// MemStore keeps sessions in memory for dev mode and tests.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]Session
	byKey map[string]string // tuple -> id
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]Session), byKey: make(map[string]string)}
}

func (m *MemStore) Insert(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[sess.ID] = sess
	m.byKey[sess.Key()] = sess.ID
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (m *MemStore) GetByKey(_ context.Context, courseID, date, slot string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[courseID+"|"+date+"|"+slot]
	if !ok {
		return nil, ErrNotFound
	}
	sess := m.byID[id]
	return &sess, nil
}

func (m *MemStore) ActiveByRoom(_ context.Context, roomID, date, slot string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.byID {
		if sess.RoomID == roomID && sess.Date == date && sess.Slot == slot && sess.State == Active {
			out := sess
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemStore) Update(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[sess.ID]
	if !ok {
		return ErrNotFound
	}
	sess.CheckedIn = existing.CheckedIn
	m.byID[sess.ID] = sess
	return nil
}

func (m *MemStore) IncrementCheckedIn(_ context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	sess.CheckedIn += delta
	if sess.CheckedIn < 0 {
		sess.CheckedIn = 0
	}
	m.byID[id] = sess
	return sess.CheckedIn, nil
}

func (m *MemStore) ActiveBefore(_ context.Context, cutoff time.Time) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, sess := range m.byID {
		if sess.State == Active && sess.ActivatedAt != nil && sess.ActivatedAt.Before(cutoff) {
			out = append(out, sess)
		}
	}
	return out, nil
}
