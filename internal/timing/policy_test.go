package timing

import (
	"testing"
	"time"
)

func TestClassify_Defaults(t *testing.T) {
	p := Default()
	cases := []struct {
		elapsed time.Duration
		want    Status
	}{
		{0, Present},
		{10 * time.Minute, Present},
		{15 * time.Minute, Present},
		{15*time.Minute + time.Second, Late},
		{20 * time.Minute, Late},
		{60 * time.Minute, Late},
		{60*time.Minute + time.Second, Rejected},
		{90 * time.Minute, Rejected},
	}
	for _, tc := range cases {
		if got := p.Classify(tc.elapsed); got != tc.want {
			t.Errorf("Classify(%s) = %s, want %s", tc.elapsed, got, tc.want)
		}
	}
}

func TestNew_FallsBackOnBadThresholds(t *testing.T) {
	p := New(0, 0)
	if p.OnTime != 15*time.Minute || p.Late != 60*time.Minute {
		t.Errorf("expected defaults, got %+v", p)
	}

	// an inverted late bound is clamped to the on-time bound
	p = New(5*time.Minute, 2*time.Minute)
	if p.Late < p.OnTime {
		t.Errorf("late window must never sit below on-time window: %+v", p)
	}

	// a large on-time window drags the default late bound up with it
	p = New(90*time.Minute, 0)
	if p.Late != 90*time.Minute {
		t.Errorf("late = %s, want clamped to 90m", p.Late)
	}
	if p.Classify(89*time.Minute) != Present {
		t.Error("89m should be present under a 90m on-time window")
	}
	if p.Classify(91*time.Minute) != Rejected {
		t.Error("91m should be rejected once past the clamped late bound")
	}
}

func TestNew_CustomThresholds(t *testing.T) {
	p := New(10*time.Minute, 30*time.Minute)
	if p.Classify(12*time.Minute) != Late {
		t.Error("12m should be late under a 10m on-time window")
	}
	if p.Classify(31*time.Minute) != Rejected {
		t.Error("31m should be rejected under a 30m late window")
	}
}
