package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

func TestWindowKeys(t *testing.T) {
	at := time.Date(2025, 3, 7, 14, 32, 45, 0, time.UTC)

	tests := []struct {
		window Window
		want   string
	}{
		{WindowMinute, "2025-03-07-14-32"},
		{WindowDay, "2025-03-07"},
		{WindowMonth, "2025-03"},
	}
	for _, tt := range tests {
		if got := tt.window.Key(at); got != tt.want {
			t.Errorf("%s key = %q, want %q", tt.window, got, tt.want)
		}
	}
}

func TestWindowKeyStableWithinMinute(t *testing.T) {
	first := time.Date(2025, 3, 7, 14, 32, 0, 0, time.UTC)
	last := first.Add(59*time.Second + 999*time.Millisecond)
	if WindowMinute.Key(first) != WindowMinute.Key(last) {
		t.Errorf("minute key changed within the same minute: %q vs %q",
			WindowMinute.Key(first), WindowMinute.Key(last))
	}

	next := first.Add(time.Minute)
	if WindowMinute.Key(first) == WindowMinute.Key(next) {
		t.Error("minute key did not change across the boundary")
	}
}

func TestWindowKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	local := time.Date(2025, 1, 1, 2, 0, 0, 0, loc) // 2024-12-31 20:30 UTC
	if got := WindowDay.Key(local); got != "2024-12-31" {
		t.Errorf("day key = %q, want UTC date 2024-12-31", got)
	}
}

func TestResetAfter(t *testing.T) {
	at := time.Date(2025, 3, 7, 14, 32, 45, 0, time.UTC)

	if got := WindowMinute.ResetAfter(at); got != 15*time.Second {
		t.Errorf("minute reset = %v, want 15s", got)
	}
	if got := WindowDay.ResetAfter(at); got != 9*time.Hour+27*time.Minute+15*time.Second {
		t.Errorf("day reset = %v", got)
	}
	// 2025-03-07 -> month rolls over 2025-04-01.
	want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).Sub(at)
	if got := WindowMonth.ResetAfter(at); got != want {
		t.Errorf("month reset = %v, want %v", got, want)
	}
}

func TestResetHintMentionsWindow(t *testing.T) {
	at := time.Date(2025, 3, 7, 14, 32, 45, 0, time.UTC)

	if hint := WindowMinute.ResetHint(at); !strings.Contains(hint, "seconds") {
		t.Errorf("minute hint %q should name seconds", hint)
	}
	if hint := WindowDay.ResetHint(at); !strings.Contains(hint, "midnight") {
		t.Errorf("day hint %q should name midnight", hint)
	}
	if hint := WindowMonth.ResetHint(at); !strings.Contains(hint, "month") {
		t.Errorf("month hint %q should name month rollover", hint)
	}
}

func TestEvaluateOrder(t *testing.T) {
	now := time.Date(2025, 3, 7, 14, 32, 45, 0, time.UTC)
	limits := model.RateLimits{PerMinute: 2, PerDay: 100, PerMonth: 1000}

	d := Evaluate(now, Counts{Minute: 1, Day: 50, Month: 500}, limits)
	if !d.Allowed {
		t.Fatalf("expected allow, got deny on %s", d.Window)
	}

	// Minute exhausted first even though day is also exhausted.
	d = Evaluate(now, Counts{Minute: 2, Day: 100, Month: 500}, limits)
	if d.Allowed {
		t.Fatal("expected deny")
	}
	if d.Window != WindowMinute {
		t.Errorf("exceeded window = %s, want minute", d.Window)
	}
	if d.Current != 2 || d.Limit != 2 {
		t.Errorf("got current=%d limit=%d, want 2/2", d.Current, d.Limit)
	}
	if d.Reason() != model.ReasonRateLimitedMinute {
		t.Errorf("reason = %q", d.Reason())
	}

	d = Evaluate(now, Counts{Minute: 0, Day: 100, Month: 500}, limits)
	if d.Allowed || d.Window != WindowDay {
		t.Errorf("expected day deny, got allowed=%v window=%s", d.Allowed, d.Window)
	}

	d = Evaluate(now, Counts{Minute: 0, Day: 0, Month: 1000}, limits)
	if d.Allowed || d.Window != WindowMonth {
		t.Errorf("expected month deny, got allowed=%v window=%s", d.Allowed, d.Window)
	}
}

func TestEvaluateZeroLimitAlwaysDenies(t *testing.T) {
	now := time.Now().UTC()
	d := Evaluate(now, Counts{}, model.RateLimits{PerMinute: 0, PerDay: 10, PerMonth: 10})
	if d.Allowed {
		t.Fatal("zero minute limit must deny even with zero usage")
	}
	if d.Window != WindowMinute || d.Current != 0 || d.Limit != 0 {
		t.Errorf("got window=%s current=%d limit=%d", d.Window, d.Current, d.Limit)
	}
}
