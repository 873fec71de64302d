package rooms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// Catalog looks up room templates. Rooms are read far more often than they
// change, so the service wraps whichever implementation it gets in a Cached
// catalog.
type Catalog interface {
	Get(ctx context.Context, id string) (*Room, error)
	Put(ctx context.Context, room Room) error
}

// Repository reads room templates from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a catalog backed by the rooms table.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get loads one room template.
func (r *Repository) Get(ctx context.Context, id string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, rows_count, seats_per_row, unavailable, special
		FROM rooms WHERE id = $1
	`, id)
	var rm Room
	var unavailable, special []byte
	if err := row.Scan(&rm.ID, &rm.Name, &rm.Rows, &rm.SeatsPerRow, &unavailable, &special); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(unavailable, &rm.Unavailable); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(special, &rm.Special); err != nil {
		return nil, err
	}
	return &rm, nil
}

// Put inserts or updates a room template.
func (r *Repository) Put(ctx context.Context, room Room) error {
	unavailable, err := json.Marshal(room.Unavailable)
	if err != nil {
		return err
	}
	special, err := json.Marshal(room.Special)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, rows_count, seats_per_row, unavailable, special)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			rows_count = EXCLUDED.rows_count,
			seats_per_row = EXCLUDED.seats_per_row,
			unavailable = EXCLUDED.unavailable,
			special = EXCLUDED.special,
			updated_at = NOW()
	`, room.ID, room.Name, room.Rows, room.SeatsPerRow, unavailable, special)
	return err
}

// MemCatalog is an in-memory catalog for dev mode and tests.
type MemCatalog struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

// NewMemCatalog creates an empty in-memory catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{rooms: make(map[string]Room)}
}

// Get returns a copy of the stored room.
func (m *MemCatalog) Get(_ context.Context, id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rm, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rm, nil
}

// Put stores a room template.
func (m *MemCatalog) Put(_ context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	return nil
}

// Cached wraps a Catalog with a short-TTL template cache. Templates only
// change between sessions, so a few minutes of staleness is acceptable.
type Cached struct {
	inner Catalog
	c     *cache.Cache
}

// NewCached wraps inner with a TTL cache.
func NewCached(inner Catalog, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{inner: inner, c: cache.New(ttl, 10*time.Minute)}
}

// Get serves from cache, falling back to the inner catalog.
func (cc *Cached) Get(ctx context.Context, id string) (*Room, error) {
	if v, ok := cc.c.Get(id); ok {
		rm := v.(Room)
		return &rm, nil
	}
	rm, err := cc.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cc.c.SetDefault(id, *rm)
	return rm, nil
}

// Put writes through and invalidates the cached entry.
func (cc *Cached) Put(ctx context.Context, room Room) error {
	if err := cc.inner.Put(ctx, room); err != nil {
		return err
	}
	cc.c.Delete(room.ID)
	return nil
}
