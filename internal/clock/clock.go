// Package clock owns every time source in the client: the Clock seam
// that makes wall-clock time injectable, and the 1 Hz session countdown
// derived from a resolved deadline window.
package clock

import "time"

// Clock abstracts wall-clock access so tests can supply deterministic
// time. Production code uses System().
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the real wall clock.
func System() Clock { return systemClock{} }

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
