package rooms

// Seat map derivation is pure: it never mutates room or occupancy state, so
// it is safe to call concurrently with claims. The occupants slice is the
// coordinator's last committed view.

// SeatStatus is the rendered state of one seat in a map.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "available"
	SeatOccupied    SeatStatus = "occupied"
	SeatUnavailable SeatStatus = "unavailable"
)

// Occupant is the display payload attached to an occupied seat.
type Occupant struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
}

// Seat is one cell of a rendered seat map.
type Seat struct {
	Code     string     `json:"code"`
	Row      int        `json:"row"`
	Number   int        `json:"number"`
	Status   SeatStatus `json:"status"`
	Special  bool       `json:"special,omitempty"`
	Occupant *Occupant  `json:"occupant,omitempty"`
}

// SeatMap is the full grid for a room overlaid with a session's occupancy.
type SeatMap struct {
	RoomID      string `json:"room_id"`
	Rows        int    `json:"rows"`
	SeatsPerRow int    `json:"seats_per_row"`
	Seats       []Seat `json:"seats"`
	Occupied    int    `json:"occupied"`
}

// BuildSeatMap derives the seat grid for room and overlays occupancy.
// occupants maps seat code to holder; unknown codes in the overlay are
// ignored rather than invented into the grid.
func BuildSeatMap(room *Room, occupants map[string]Occupant) SeatMap {
	m := SeatMap{
		RoomID:      room.ID,
		Rows:        room.Rows,
		SeatsPerRow: room.SeatsPerRow,
		Seats:       make([]Seat, 0, room.Rows*room.SeatsPerRow),
	}
	for row := 1; row <= room.Rows; row++ {
		for n := 1; n <= room.SeatsPerRow; n++ {
			code := SeatCode(row, n)
			seat := Seat{
				Code:    code,
				Row:     row,
				Number:  n,
				Status:  SeatAvailable,
				Special: room.SeatSpecial(code),
			}
			if room.SeatBlocked(code) {
				seat.Status = SeatUnavailable
			} else if occ, ok := occupants[code]; ok {
				seat.Status = SeatOccupied
				holder := occ
				seat.Occupant = &holder
				m.Occupied++
			}
			m.Seats = append(m.Seats, seat)
		}
	}
	return m
}
