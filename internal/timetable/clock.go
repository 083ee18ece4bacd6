package timetable

import "time"

// Clock supplies the generation time. Everything time-dependent in a run
// (cache version, calendar anchors, DTSTAMP) reads it once.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At
}

const cacheVersionLayout = "v2006.01.02.15.04.05"

// CacheVersion derives the run's cache-version token, e.g. "v2026.10.16.09.30.00".
// Tokens sort in generation order.
func CacheVersion(now time.Time) string {
	return now.Format(cacheVersionLayout)
}
