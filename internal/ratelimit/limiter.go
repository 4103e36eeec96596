package ratelimit

import (
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

// Counts holds the observed counter values for one identifier across all
// three windows at decision time.
type Counts struct {
	Minute int `json:"minute"`
	Day    int `json:"day"`
	Month  int `json:"month"`
}

// Get returns the count for a window.
func (c Counts) Get(w Window) int {
	switch w {
	case WindowMinute:
		return c.Minute
	case WindowDay:
		return c.Day
	case WindowMonth:
		return c.Month
	}
	return 0
}

// limitFor returns the configured ceiling for a window.
func limitFor(l model.RateLimits, w Window) int {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowDay:
		return l.PerDay
	case WindowMonth:
		return l.PerMonth
	}
	return 0
}

// Decision is the structured result of a rate-limit check.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Populated on deny: the first window (minute -> day -> month) whose
	// count had already reached its limit.
	Window     Window        `json:"window,omitempty"`
	Current    int           `json:"current,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	ResetHint  string        `json:"reset_hint,omitempty"`
	RetryAfter time.Duration `json:"-"`

	// Counters observed at decision time, for diagnostics. On allow these
	// are the post-increment values.
	Counts Counts           `json:"counts"`
	Limits model.RateLimits `json:"limits"`
}

// Evaluate applies the configured limits to the observed counts. Windows are
// checked in order minute -> day -> month and the first exhausted window
// denies. A limit of 0 always denies. Evaluate is pure; the caller is
// responsible for reading counts and applying increments atomically.
func Evaluate(now time.Time, counts Counts, limits model.RateLimits) Decision {
	for _, w := range Windows {
		limit := limitFor(limits, w)
		current := counts.Get(w)
		if current >= limit {
			return Decision{
				Allowed:    false,
				Window:     w,
				Current:    current,
				Limit:      limit,
				ResetHint:  w.ResetHint(now),
				RetryAfter: w.ResetAfter(now),
				Counts:     counts,
				Limits:     limits,
			}
		}
	}
	return Decision{Allowed: true, Counts: counts, Limits: limits}
}

// Reason maps a denied decision's window to its diagnostic reason code.
func (d Decision) Reason() string {
	switch d.Window {
	case WindowMinute:
		return model.ReasonRateLimitedMinute
	case WindowDay:
		return model.ReasonRateLimitedDay
	case WindowMonth:
		return model.ReasonRateLimitedMonth
	}
	return model.ReasonOK
}
