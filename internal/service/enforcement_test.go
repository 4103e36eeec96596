package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

func TestToggleDisableRequiresDuration(t *testing.T) {
	_, st := newTestEngine(t)
	now := time.Now().UTC()

	for _, minutes := range []int{0, -5, 1441} {
		_, err := ToggleEnforcement(context.Background(), st, ToggleRequest{Enforce: false, DurationMinutes: minutes}, "10.0.0.1", now)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("duration %d: got %v, want ValidationError", minutes, err)
		}
	}

	// Nothing was persisted by the rejected requests.
	ac, err := st.LoadAccessControl(context.Background())
	if err != nil {
		t.Fatalf("LoadAccessControl: %v", err)
	}
	if !ac.Enforce {
		t.Error("rejected toggle must not disable enforcement")
	}
}

func TestToggleScopedBypassDefaultsToCallerIP(t *testing.T) {
	_, st := newTestEngine(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	ac, err := ToggleEnforcement(context.Background(), st, ToggleRequest{Enforce: false, DurationMinutes: 30}, "203.0.113.9", now)
	if err != nil {
		t.Fatalf("ToggleEnforcement: %v", err)
	}
	if ac.Enforce || ac.Global {
		t.Errorf("unexpected state: %+v", ac)
	}
	if len(ac.AllowedIPs) != 1 || ac.AllowedIPs[0] != "203.0.113.9" {
		t.Errorf("allow-list should default to the caller: %v", ac.AllowedIPs)
	}
	if ac.ExpiresAt == nil || !ac.ExpiresAt.Equal(now.Add(30*time.Minute)) {
		t.Errorf("expiry: %v", ac.ExpiresAt)
	}
}

func TestToggleValidatesIPs(t *testing.T) {
	_, st := newTestEngine(t)
	now := time.Now().UTC()

	req := ToggleRequest{Enforce: false, DurationMinutes: 30, AllowedIPs: []string{"10.0.0.1", "not-an-ip"}}
	_, err := ToggleEnforcement(context.Background(), st, req, "10.0.0.1", now)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}

	req.AllowedIPs = []string{"10.0.0.1", "192.168.0.0/16"}
	if _, err := ToggleEnforcement(context.Background(), st, req, "10.0.0.1", now); err != nil {
		t.Fatalf("valid IP list rejected: %v", err)
	}
}

func TestToggleReenableClearsBypass(t *testing.T) {
	_, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := ToggleEnforcement(ctx, st, ToggleRequest{Enforce: false, DurationMinutes: 60, Global: true}, "", now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	ac, _ := st.LoadAccessControl(ctx)
	if ac.Enforce {
		t.Fatal("disable did not stick")
	}

	if _, err := ToggleEnforcement(ctx, st, ToggleRequest{Enforce: true}, "", now); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	ac, _ = st.LoadAccessControl(ctx)
	if !ac.Enforce || ac.ExpiresAt != nil {
		t.Errorf("bypass not cleared: %+v", ac)
	}
}
