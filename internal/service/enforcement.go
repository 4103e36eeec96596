package service

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// Bounds on how long enforcement may stay disabled. An unbounded bypass is
// not expressible.
const (
	MinBypassMinutes = 1
	MaxBypassMinutes = 1440
)

// ToggleRequest is the admin request to change enforcement state.
type ToggleRequest struct {
	Enforce         bool     `json:"enforce"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Global          bool     `json:"global,omitempty"`
	AllowedIPs      []string `json:"allowed_ips,omitempty"`
}

// ToggleEnforcement applies an enforcement change. Re-enabling clears any
// bypass. Disabling requires a bounded duration; an IP-scoped bypass with no
// explicit allow-list defaults to the caller's own IP so that "disable for
// me" never accidentally opens the API to everyone.
func ToggleEnforcement(ctx context.Context, st *store.Store, req ToggleRequest, callerIP string, now time.Time) (store.AccessControl, error) {
	if req.Enforce {
		if err := st.ClearAccessControl(ctx); err != nil {
			return store.AccessControl{}, err
		}
		return store.DefaultAccessControl(), nil
	}

	if req.DurationMinutes < MinBypassMinutes || req.DurationMinutes > MaxBypassMinutes {
		return store.AccessControl{}, &model.ValidationError{
			Field:  "duration_minutes",
			Reason: "must be between 1 and 1440 when disabling enforcement",
		}
	}

	ac := store.AccessControl{Enforce: false, Global: req.Global}
	until := now.UTC().Add(time.Duration(req.DurationMinutes) * time.Minute)
	ac.ExpiresAt = &until

	if !req.Global {
		ips := req.AllowedIPs
		if len(ips) == 0 {
			if callerIP == "" {
				return store.AccessControl{}, &model.ValidationError{
					Field:  "allowed_ips",
					Reason: "required for a scoped bypass when the caller IP is unknown",
				}
			}
			ips = []string{callerIP}
		}
		for _, ip := range ips {
			if !validIPOrPrefix(ip) {
				return store.AccessControl{}, &model.ValidationError{
					Field:  "allowed_ips",
					Reason: "entries must be IP addresses or CIDR prefixes",
				}
			}
		}
		ac.AllowedIPs = ips
	}

	if err := st.SaveAccessControl(ctx, ac); err != nil {
		return store.AccessControl{}, err
	}
	return ac, nil
}

func validIPOrPrefix(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
