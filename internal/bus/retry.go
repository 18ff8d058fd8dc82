package bus

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryDelay caps the doubling schedule so a long retry budget cannot
// park a delivery goroutine for hours.
const maxRetryDelay = 5 * time.Minute

// Policy describes the delay schedule applied between handler retries:
// Base before the first retry, doubling on each subsequent attempt.
type Policy struct {
	Base time.Duration
}

// Sequence is a single delivery's stateful walk through the policy schedule.
type Sequence struct {
	sched *backoff.ExponentialBackOff
}

// Sequence starts a fresh schedule for one delivery.
func (p Policy) Sequence() *Sequence {
	sched := backoff.NewExponentialBackOff()
	sched.InitialInterval = p.Base
	sched.RandomizationFactor = 0
	sched.Multiplier = 2
	sched.MaxInterval = maxRetryDelay
	sched.Reset()
	return &Sequence{sched: sched}
}

// Next returns the pause before the upcoming retry attempt.
func (s *Sequence) Next() time.Duration {
	d := s.sched.NextBackOff()
	if d == backoff.Stop || d < 0 {
		return maxRetryDelay
	}
	return d
}

// Delay returns the pause inserted before retry attempt number attempt
// (1-based) without mutating any shared state. Exposed separately from the
// dispatch path so the schedule is unit-testable on its own.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	seq := p.Sequence()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = seq.Next()
	}
	return d
}
