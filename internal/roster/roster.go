package roster

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrUnknownStudent is returned when an external code resolves to nobody.
var ErrUnknownStudent = errors.New("unknown student code")

// Student is one enrolled student. ID is the canonical identity used by
// seat claims; Code is the external student number resolved at the boundary.
type Student struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Store is the enrollment collaborator: read-only lookups against whatever
// system owns courses and enrollments.
type Store interface {
	ActiveStudents(ctx context.Context, courseID string) ([]Student, error)
	ResolveCode(ctx context.Context, code string) (*Student, error)
	Lookup(ctx context.Context, studentID string) (*Student, error)
}

// Repository reads enrollments from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ActiveStudents lists the active roster for a course.
func (r *Repository) ActiveStudents(ctx context.Context, courseID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, student_code, student_name
		FROM enrollments
		WHERE course_id = $1 AND active
		ORDER BY student_code
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Code, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ResolveCode maps an external student code to the canonical identity.
func (r *Repository) ResolveCode(ctx context.Context, code string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, student_code, student_name
		FROM enrollments WHERE student_code = $1 AND active
		LIMIT 1
	`, code)
	var s Student
	if err := row.Scan(&s.ID, &s.Code, &s.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownStudent
		}
		return nil, err
	}
	return &s, nil
}

// Lookup fetches a student by canonical id, nil when unknown.
func (r *Repository) Lookup(ctx context.Context, studentID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, student_code, student_name
		FROM enrollments WHERE student_id = $1
		LIMIT 1
	`, studentID)
	var s Student
	if err := row.Scan(&s.ID, &s.Code, &s.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// MemStore is a seeded in-memory roster for dev mode and tests.
type MemStore struct {
	mu      sync.RWMutex
	byID    map[string]Student
	byCode  map[string]Student
	courses map[string][]string // courseID -> student ids
}

// NewMemStore creates an empty roster.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:    make(map[string]Student),
		byCode:  make(map[string]Student),
		courses: make(map[string][]string),
	}
}

// Enroll adds a student to a course's active roster.
func (m *MemStore) Enroll(courseID string, s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	if s.Code != "" {
		m.byCode[s.Code] = s
	}
	m.courses[courseID] = append(m.courses[courseID], s.ID)
}

func (m *MemStore) ActiveStudents(_ context.Context, courseID string) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.courses[courseID]
	out := make([]Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *MemStore) ResolveCode(_ context.Context, code string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byCode[code]
	if !ok {
		return nil, ErrUnknownStudent
	}
	return &s, nil
}

func (m *MemStore) Lookup(_ context.Context, studentID string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[studentID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
