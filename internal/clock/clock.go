package clock

import "time"

// Clock supplies the current time. Scoring and SLA math take it as an
// injected dependency so tests can pin time deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Clock backed by the wall clock.
func System() Clock {
	return systemClock{}
}
