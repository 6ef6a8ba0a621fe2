package inbox

import "time"

// Backoff holds the reconnect and reconcile pacing parameters. The
// machine is pure so transitions can be tested without clocks.
type Backoff struct {
	// Base is the delay after a success and the floor for retries.
	Base time.Duration
	// Max caps the retry delay.
	Max time.Duration
	// Factor multiplies the delay after each consecutive failure.
	Factor float64
	// HiddenFactor stretches the delay while the consumer is
	// backgrounded; clearing hidden restores normal pacing on the
	// next Delay call.
	HiddenFactor float64
}

// DefaultBackoff matches the production client pacing.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:         4 * time.Second,
		Max:          60 * time.Second,
		Factor:       2,
		HiddenFactor: 4,
	}
}

// PollState is one point in the pacing machine.
type PollState struct {
	Interval time.Duration
	Hidden   bool
}

// Initial starts at the base interval, visible.
func (b Backoff) Initial() PollState {
	return PollState{Interval: b.Base}
}

// AfterSuccess resets the interval to base; hidden is preserved.
func (b Backoff) AfterSuccess(s PollState) PollState {
	s.Interval = b.Base
	return s
}

// AfterFailure grows the interval multiplicatively up to Max.
func (b Backoff) AfterFailure(s PollState) PollState {
	next := time.Duration(float64(s.Interval) * b.Factor)
	if next < b.Base {
		next = b.Base
	}
	if next > b.Max {
		next = b.Max
	}
	s.Interval = next
	return s
}

// SetHidden marks the consumer backgrounded or foregrounded.
func (b Backoff) SetHidden(s PollState, hidden bool) PollState {
	s.Hidden = hidden
	return s
}

// Delay is the wait to apply right now for the given state.
func (b Backoff) Delay(s PollState) time.Duration {
	if s.Hidden {
		d := time.Duration(float64(s.Interval) * b.HiddenFactor)
		if d > b.Max {
			return b.Max
		}
		return d
	}
	return s.Interval
}
