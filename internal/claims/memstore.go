package claims

import (
	"context"
	"sync"
	"time"

	"classroom/internal/store"
)

// MemStore keeps claims in memory for dev mode and tests. A per-session
// mutex plays the role of the database uniqueness constraints: insert is
// check-and-reserve under the session's lock, so two racing claims for the
// same seat cannot both land.
type MemStore struct {
	locks *store.KeyedMutex

	mu        sync.RWMutex
	bySeat    map[string]*Claim // sessionID|seatCode -> live claim
	byStudent map[string]*Claim // sessionID|studentID -> live claim
	history   []*Claim
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		locks:     store.NewKeyedMutex(),
		bySeat:    make(map[string]*Claim),
		byStudent: make(map[string]*Claim),
	}
}

func seatKey(sessionID, seatCode string) string     { return sessionID + "|" + seatCode }
func studentKey(sessionID, studentID string) string { return sessionID + "|" + studentID }

func (m *MemStore) Insert(_ context.Context, c Claim) error {
	unlock := m.locks.Lock(c.SessionID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.bySeat[seatKey(c.SessionID, c.SeatCode)]; taken {
		return errSeatConflict
	}
	if _, claimed := m.byStudent[studentKey(c.SessionID, c.StudentID)]; claimed {
		return errStudentConflict
	}
	stored := c
	m.bySeat[seatKey(c.SessionID, c.SeatCode)] = &stored
	m.byStudent[studentKey(c.SessionID, c.StudentID)] = &stored
	m.history = append(m.history, &stored)
	return nil
}

func (m *MemStore) Release(_ context.Context, sessionID, seatCode, studentID string, at time.Time) (*Claim, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	live, ok := m.bySeat[seatKey(sessionID, seatCode)]
	if !ok || live.StudentID != studentID {
		return nil, nil
	}
	released := at
	live.ReleasedAt = &released
	delete(m.bySeat, seatKey(sessionID, seatCode))
	delete(m.byStudent, studentKey(sessionID, studentID))
	out := *live
	return &out, nil
}

func (m *MemStore) ActiveBySession(_ context.Context, sessionID string) ([]Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Claim
	for _, c := range m.bySeat {
		if c.SessionID == sessionID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemStore) ActiveBySeat(_ context.Context, sessionID, seatCode string) (*Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.bySeat[seatKey(sessionID, seatCode)]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *MemStore) ActiveByStudent(_ context.Context, sessionID, studentID string) (*Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byStudent[studentKey(sessionID, studentID)]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}
