package timing

import (
	"log"
	"time"
)

// Status classifies a check-in relative to session activation.
type Status string

const (
	// Present means the student checked in inside the on-time window.
	Present Status = "present"
	// Late means the student checked in after the on-time window but before
	// the check-in window closed.
	Late Status = "late"
	// Rejected means the check-in window has closed; the claim is refused.
	Rejected Status = "rejected"
)

// Policy holds the two window thresholds. Both are inclusive upper bounds:
// elapsed <= OnTime is present, elapsed <= Late is late, anything beyond is
// rejected.
type Policy struct {
	OnTime time.Duration
	Late   time.Duration
}

// Default returns the standard 15/60 minute policy.
func Default() Policy {
	return Policy{OnTime: 15 * time.Minute, Late: 60 * time.Minute}
}

// New builds a policy, falling back to defaults for non-positive thresholds.
// A late bound below the on-time bound is clamped up to it so the policy
// never inverts; the rejected value is logged.
func New(onTime, late time.Duration) Policy {
	p := Default()
	if onTime > 0 {
		p.OnTime = onTime
	}
	if late > 0 {
		p.Late = late
	}
	if p.Late < p.OnTime {
		log.Printf("late window %s below on-time window %s, clamping", p.Late, p.OnTime)
		p.Late = p.OnTime
	}
	return p
}

// Classify maps elapsed time since session activation to a Status.
func (p Policy) Classify(elapsed time.Duration) Status {
	switch {
	case elapsed <= p.OnTime:
		return Present
	case elapsed <= p.Late:
		return Late
	default:
		return Rejected
	}
}
