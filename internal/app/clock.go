package app

import "time"

// Clock returns the current instant in the firm's timezone. Services capture it
// once per request so every status in a response derives from the same day.
func Clock(loc *time.Location) func() time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time {
		return time.Now().In(loc)
	}
}
