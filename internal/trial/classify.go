package trial

import "time"

// Classify decides a response at t. Before Coherent (coherentStart zero) it
// is an early false alarm. Otherwise the hit window is
// [coherentStart+rtDelay, coherentStart+stimulus+rtDelay], both ends inclusive.
func Classify(t, coherentStart time.Time, rtDelay, stimulus time.Duration) (outcome Outcome, late bool) {
	if coherentStart.IsZero() {
		return OutcomeFalseAlarm, false
	}

	start := coherentStart.Add(rtDelay)
	end := coherentStart.Add(stimulus + rtDelay)

	switch {
	case t.Before(start):
		return OutcomeFalseAlarm, false
	case t.After(end):
		return OutcomeFalseAlarm, true
	default:
		return OutcomeHit, false
	}
}
