// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// UTCNowAdd returns the current UTC time plus the given duration
func UTCNowAdd(d time.Duration) time.Time {
	return UTCNow().Add(d)
}

// Clock is the time source used by flows and schedulers
type Clock func() time.Time

// SystemClock returns the wall clock in UTC
func SystemClock() Clock {
	return UTCNow
}

// FixedClock returns a clock that always reports t
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// LoadLocation resolves a timezone name, falling back to UTC for an empty name
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalDate returns t formatted as YYYY-MM-DD in loc
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(LeadGenDateLayout)
}

// StartOfNextDay returns midnight of the day after t in loc, as UTC
func StartOfNextDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.UTC()
}

// StartOfMonth returns midnight of the first day of t's month in loc, as UTC
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).UTC()
}

// EarliestOf returns the earliest non-nil time, or nil when all are nil
func EarliestOf(times ...*time.Time) *time.Time {
	var earliest *time.Time
	for _, t := range times {
		if t == nil {
			continue
		}
		if earliest == nil || t.Before(*earliest) {
			v := *t
			earliest = &v
		}
	}
	return earliest
}
