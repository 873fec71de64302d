package reservations

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Repository persists reservations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const reservationCols = `id, room_id, course_id, weekday, start_min, end_min, recurring, on_date, cancelled, created_at`

func scanReservation(row interface{ Scan(...any) error }) (Reservation, error) {
	var r Reservation
	var weekday int
	err := row.Scan(&r.ID, &r.RoomID, &r.CourseID, &weekday, &r.StartMin, &r.EndMin,
		&r.Recurring, &r.Date, &r.Cancelled, &r.CreatedAt)
	r.Weekday = time.Weekday(weekday)
	return r, err
}

// Insert writes a new reservation row.
func (r *Repository) Insert(ctx context.Context, res Reservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (id, room_id, course_id, weekday, start_min, end_min, recurring, on_date, cancelled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, res.ID, res.RoomID, res.CourseID, int(res.Weekday), res.StartMin, res.EndMin,
		res.Recurring, res.Date, res.Cancelled, res.CreatedAt)
	return err
}

// Get returns one reservation by id.
func (r *Repository) Get(ctx context.Context, id string) (*Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// Cancel soft-deletes.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	tag, err := r.db.ExecContext(ctx, `UPDATE reservations SET cancelled = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelActiveByCourse soft-deletes every live booking of a course.
func (r *Repository) CancelActiveByCourse(ctx context.Context, courseID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET cancelled = TRUE WHERE course_id = $1 AND NOT cancelled
	`, courseID)
	return err
}

// ActiveByRoom lists live bookings for a room.
func (r *Repository) ActiveByRoom(ctx context.Context, roomID string) ([]Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations WHERE room_id = $1 AND NOT cancelled`, roomID)
}

// ActiveByCourse lists live bookings for a course.
func (r *Repository) ActiveByCourse(ctx context.Context, courseID string) ([]Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations WHERE course_id = $1 AND NOT cancelled`, courseID)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// MemStore is the in-memory ledger backend for dev mode and tests.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]Reservation
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]Reservation)}
}

func (m *MemStore) Insert(_ context.Context, res Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[res.ID] = res
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

func (m *MemStore) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	res.Cancelled = true
	m.rows[id] = res
	return nil
}

func (m *MemStore) CancelActiveByCourse(_ context.Context, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, res := range m.rows {
		if res.CourseID == courseID && !res.Cancelled {
			res.Cancelled = true
			m.rows[id] = res
		}
	}
	return nil
}

func (m *MemStore) ActiveByRoom(_ context.Context, roomID string) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Reservation
	for _, res := range m.rows {
		if res.RoomID == roomID && !res.Cancelled {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *MemStore) ActiveByCourse(_ context.Context, courseID string) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Reservation
	for _, res := range m.rows {
		if res.CourseID == courseID && !res.Cancelled {
			out = append(out, res)
		}
	}
	return out, nil
}
