package rooms

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when a room id is unknown.
var ErrNotFound = errors.New("room not found")

// Room describes one physical classroom: a rectangular grid of seats with
// template-declared unavailable and special-purpose seats. The template is
// immutable while a session is running.
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Rows        int      `json:"rows"`
	SeatsPerRow int      `json:"seats_per_row"`
	Unavailable []string `json:"unavailable,omitempty"`
	Special     []string `json:"special,omitempty"`
}

// Capacity is the number of claimable seats in the room.
func (r *Room) Capacity() int {
	return r.Rows*r.SeatsPerRow - len(r.Unavailable)
}

// SeatCode builds the code for a 1-based (row, number) position: row 1 is
// "A", so seat 2 of row 1 is "A2".
func SeatCode(row, number int) string {
	return fmt.Sprintf("%c%d", 'A'+row-1, number)
}

// ParseSeatCode splits a code like "B3" back into a 1-based row and number.
func ParseSeatCode(code string) (row, number int, err error) {
	if len(code) < 2 {
		return 0, 0, fmt.Errorf("seat code %q too short", code)
	}
	c := code[0]
	if c < 'A' || c > 'Z' {
		return 0, 0, fmt.Errorf("seat code %q: row must be A-Z", code)
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("seat code %q: bad seat number", code)
	}
	return int(c-'A') + 1, n, nil
}

// HasSeat reports whether code names a position inside the room grid,
// regardless of availability.
func (r *Room) HasSeat(code string) bool {
	row, n, err := ParseSeatCode(code)
	if err != nil {
		return false
	}
	return row >= 1 && row <= r.Rows && n >= 1 && n <= r.SeatsPerRow
}

// SeatBlocked reports whether the template declares code unavailable.
func (r *Room) SeatBlocked(code string) bool {
	for _, u := range r.Unavailable {
		if u == code {
			return true
		}
	}
	return false
}

// SeatSpecial reports whether code is a special-purpose seat (accessibility,
// reserved).
func (r *Room) SeatSpecial(code string) bool {
	for _, s := range r.Special {
		if s == code {
			return true
		}
	}
	return false
}
