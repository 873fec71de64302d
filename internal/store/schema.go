package store

import "context"

// Schema is applied at startup. The partial unique indexes on seat_claims are
// the arbiter for claim races: the coordinator's in-memory checks are an
// optimization, a 23505 on insert is the real answer.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	rows_count    INT NOT NULL,
	seats_per_row INT NOT NULL,
	unavailable   JSONB NOT NULL DEFAULT '[]',
	special       JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS enrollments (
	id           TEXT PRIMARY KEY,
	course_id    TEXT NOT NULL,
	student_id   TEXT NOT NULL,
	student_code TEXT NOT NULL,
	student_name TEXT NOT NULL DEFAULT '',
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (course_id, student_id)
);
CREATE INDEX IF NOT EXISTS enrollments_code_idx ON enrollments (student_code);

CREATE TABLE IF NOT EXISTS reservations (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	course_id  TEXT NOT NULL,
	weekday    INT NOT NULL,
	start_min  INT NOT NULL,
	end_min    INT NOT NULL,
	recurring  BOOLEAN NOT NULL DEFAULT FALSE,
	on_date    TEXT NOT NULL DEFAULT '',
	cancelled  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS reservations_room_idx ON reservations (room_id) WHERE NOT cancelled;
CREATE INDEX IF NOT EXISTS reservations_course_idx ON reservations (course_id) WHERE NOT cancelled;

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	course_id      TEXT NOT NULL,
	room_id        TEXT NOT NULL,
	session_date   TEXT NOT NULL,
	slot           TEXT NOT NULL,
	state          TEXT NOT NULL,
	total_students INT NOT NULL DEFAULT 0,
	checked_in     INT NOT NULL DEFAULT 0,
	activated_at   TIMESTAMPTZ,
	closed_at      TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (course_id, session_date, slot)
);

CREATE TABLE IF NOT EXISTS seat_claims (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	room_id     TEXT NOT NULL,
	course_id   TEXT NOT NULL,
	session_date TEXT NOT NULL,
	slot        TEXT NOT NULL,
	seat_code   TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	claimed_at  TIMESTAMPTZ NOT NULL,
	released_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS seat_claims_live_seat_key
	ON seat_claims (session_id, seat_code) WHERE released_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS seat_claims_live_student_key
	ON seat_claims (session_id, student_id) WHERE released_at IS NULL;

CREATE TABLE IF NOT EXISTS attendance_records (
	id           TEXT PRIMARY KEY,
	student_id   TEXT NOT NULL,
	course_id    TEXT NOT NULL,
	session_date TEXT NOT NULL,
	slot         TEXT NOT NULL,
	status       TEXT NOT NULL,
	checkin_at   TIMESTAMPTZ,
	method       TEXT NOT NULL DEFAULT '',
	claim_id     TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (student_id, course_id, session_date, slot)
);
CREATE INDEX IF NOT EXISTS attendance_records_session_idx
	ON attendance_records (course_id, session_date, slot);
`

// EnsureSchema applies the DDL. Safe to run repeatedly.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, Schema)
	return err
}

// Names of the seat_claims indexes, used to map 23505 violations to domain errors.
const (
	SeatClaimSeatConstraint    = "seat_claims_live_seat_key"
	SeatClaimStudentConstraint = "seat_claims_live_student_key"
)
