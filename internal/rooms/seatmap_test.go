package rooms

import "testing"

func TestSeatCodeRoundTrip(t *testing.T) {
	cases := []struct {
		row, number int
		code        string
	}{
		{1, 1, "A1"},
		{1, 3, "A3"},
		{2, 2, "B2"},
		{5, 12, "E12"},
	}
	for _, tc := range cases {
		if got := SeatCode(tc.row, tc.number); got != tc.code {
			t.Errorf("SeatCode(%d,%d) = %q, want %q", tc.row, tc.number, got, tc.code)
		}
		row, n, err := ParseSeatCode(tc.code)
		if err != nil {
			t.Fatalf("ParseSeatCode(%q): %v", tc.code, err)
		}
		if row != tc.row || n != tc.number {
			t.Errorf("ParseSeatCode(%q) = (%d,%d), want (%d,%d)", tc.code, row, n, tc.row, tc.number)
		}
	}
}

func TestParseSeatCode_Invalid(t *testing.T) {
	for _, code := range []string{"", "A", "1A", "a1", "A0", "Ax"} {
		if _, _, err := ParseSeatCode(code); err == nil {
			t.Errorf("ParseSeatCode(%q): expected error", code)
		}
	}
}

func TestHasSeat(t *testing.T) {
	room := &Room{ID: "r1", Rows: 2, SeatsPerRow: 3}
	for _, code := range []string{"A1", "A3", "B1", "B3"} {
		if !room.HasSeat(code) {
			t.Errorf("expected room to have seat %s", code)
		}
	}
	for _, code := range []string{"A4", "C1", "B0", "zz"} {
		if room.HasSeat(code) {
			t.Errorf("room should not have seat %s", code)
		}
	}
}

func TestBuildSeatMap(t *testing.T) {
	room := &Room{
		ID:          "r1",
		Rows:        2,
		SeatsPerRow: 3,
		Unavailable: []string{"B3"},
		Special:     []string{"A1"},
	}
	occ := map[string]Occupant{
		"A2": {StudentID: "s1", Name: "Ada"},
	}

	m := BuildSeatMap(room, occ)

	if len(m.Seats) != 6 {
		t.Fatalf("expected 6 seats, got %d", len(m.Seats))
	}
	if m.Occupied != 1 {
		t.Errorf("expected occupied count 1, got %d", m.Occupied)
	}
	byCode := make(map[string]Seat)
	for _, s := range m.Seats {
		byCode[s.Code] = s
	}
	if byCode["A2"].Status != SeatOccupied || byCode["A2"].Occupant == nil || byCode["A2"].Occupant.StudentID != "s1" {
		t.Errorf("A2 should be occupied by s1: %+v", byCode["A2"])
	}
	if byCode["B3"].Status != SeatUnavailable {
		t.Errorf("B3 should be unavailable, got %s", byCode["B3"].Status)
	}
	if !byCode["A1"].Special {
		t.Error("A1 should be marked special")
	}
	if byCode["B1"].Status != SeatAvailable {
		t.Errorf("B1 should be available, got %s", byCode["B1"].Status)
	}
}

func TestBuildSeatMap_IgnoresUnknownOccupantCodes(t *testing.T) {
	room := &Room{ID: "r1", Rows: 1, SeatsPerRow: 2}
	m := BuildSeatMap(room, map[string]Occupant{"Z9": {StudentID: "ghost"}})
	if m.Occupied != 0 {
		t.Errorf("overlay outside the grid must not count, got %d", m.Occupied)
	}
}
