package claims

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"classroom/internal/store"
)

// Repository persists seat claims in Postgres. The partial unique indexes on
// seat_claims are the race arbiter: a 23505 on insert is translated to the
// matching conflict sentinel.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const claimCols = `id, session_id, room_id, course_id, session_date, slot, seat_code, student_id, claimed_at, released_at`

func scanClaim(row interface{ Scan(...any) error }) (Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.SessionID, &c.RoomID, &c.CourseID, &c.Date, &c.Slot,
		&c.SeatCode, &c.StudentID, &c.ClaimedAt, &c.ReleasedAt)
	return c, err
}

// Insert writes a claim, mapping uniqueness violations to conflict sentinels.
func (r *Repository) Insert(ctx context.Context, c Claim) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO seat_claims (id, session_id, room_id, course_id, session_date, slot, seat_code, student_id, claimed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.SessionID, c.RoomID, c.CourseID, c.Date, c.Slot, c.SeatCode, c.StudentID, c.ClaimedAt)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case store.SeatClaimSeatConstraint:
			return errSeatConflict
		case store.SeatClaimStudentConstraint:
			return errStudentConflict
		}
	}
	return err
}

// Release marks the live claim released, returning nil when none matched.
func (r *Repository) Release(ctx context.Context, sessionID, seatCode, studentID string, at time.Time) (*Claim, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE seat_claims
		SET released_at = $4
		WHERE session_id = $1 AND seat_code = $2 AND student_id = $3 AND released_at IS NULL
		RETURNING `+claimCols+`
	`, sessionID, seatCode, studentID, at)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ActiveBySession lists live claims for a session.
func (r *Repository) ActiveBySession(ctx context.Context, sessionID string) ([]Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimCols+` FROM seat_claims
		WHERE session_id = $1 AND released_at IS NULL
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveBySeat returns the live claim for a seat, nil when free.
func (r *Repository) ActiveBySeat(ctx context.Context, sessionID, seatCode string) (*Claim, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+claimCols+` FROM seat_claims
		WHERE session_id = $1 AND seat_code = $2 AND released_at IS NULL
	`, sessionID, seatCode)
	return one(row)
}

// ActiveByStudent returns the student's live claim, nil when none.
func (r *Repository) ActiveByStudent(ctx context.Context, sessionID, studentID string) (*Claim, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+claimCols+` FROM seat_claims
		WHERE session_id = $1 AND student_id = $2 AND released_at IS NULL
	`, sessionID, studentID)
	return one(row)
}

func one(row *sql.Row) (*Claim, error) {
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
