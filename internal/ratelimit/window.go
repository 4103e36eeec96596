// Package ratelimit implements the fixed-window accounting used by the usage
// ledger: canonical window keys derived from wall-clock time, the ordered
// minute/day/month limit evaluation, and human-actionable reset hints.
package ratelimit

import (
	"fmt"
	"time"
)

// Window identifies one of the three fixed rate-limit granularities.
type Window string

const (
	WindowMinute Window = "minute"
	WindowDay    Window = "day"
	WindowMonth  Window = "month"
)

// Windows lists all granularities in evaluation order: the tightest, most
// time-local window first, since its reset hint is the most actionable.
var Windows = []Window{WindowMinute, WindowDay, WindowMonth}

// Key returns the canonical window key for t at this granularity. Keys are
// computed in UTC so a deployment's counters are immune to local DST shifts.
func (w Window) Key(t time.Time) string {
	t = t.UTC()
	switch w {
	case WindowMinute:
		return t.Format("2006-01-02-15-04")
	case WindowDay:
		return t.Format("2006-01-02")
	case WindowMonth:
		return t.Format("2006-01")
	}
	return ""
}

// ResetAfter returns the duration until the window containing t rolls over.
func (w Window) ResetAfter(t time.Time) time.Duration {
	t = t.UTC()
	switch w {
	case WindowMinute:
		next := t.Truncate(time.Minute).Add(time.Minute)
		return next.Sub(t)
	case WindowDay:
		next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		return next.Sub(t)
	case WindowMonth:
		next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return next.Sub(t)
	}
	return 0
}

// ResetHint renders a human-readable description of when the window resets.
func (w Window) ResetHint(t time.Time) string {
	d := w.ResetAfter(t)
	switch w {
	case WindowMinute:
		secs := int(d.Seconds())
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("try again in %d seconds", secs)
	case WindowDay:
		hours := int(d.Hours())
		mins := int(d.Minutes()) - hours*60
		return fmt.Sprintf("resets at midnight UTC (in %dh %dm)", hours, mins)
	case WindowMonth:
		days := int(d.Hours() / 24)
		if days < 1 {
			return "resets at the start of next month (under a day away)"
		}
		return fmt.Sprintf("resets at the start of next month (in %d days)", days)
	}
	return ""
}
