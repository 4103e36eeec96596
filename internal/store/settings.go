package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"
)

// accessControlKey is the settings row holding the enforcement state.
const accessControlKey = "access_control"

// AccessControl is the persisted enforcement setting. Enforcement can only
// be relaxed for a bounded window: ExpiresAt is mandatory whenever Enforce
// is false, so the API can never be left open indefinitely by accident.
type AccessControl struct {
	// Enforce is the normal state: every chart request needs a credential.
	Enforce bool `json:"enforce"`

	// Global marks a full, IP-unrestricted enforcement disable (outcome
	// enforcement_disabled). When false, the relaxation is an IP-scoped
	// bypass window (outcome bypass_active).
	Global bool `json:"global,omitempty"`

	// ExpiresAt bounds the relaxation. Required when Enforce is false.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// AllowedIPs restricts a bypass window to specific caller addresses or
	// CIDR ranges. Ignored when Global is true.
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

// DefaultAccessControl is the state used when no setting has been stored.
func DefaultAccessControl() AccessControl {
	return AccessControl{Enforce: true}
}

// Expired reports whether a relaxation window has passed.
func (ac AccessControl) Expired(now time.Time) bool {
	return !ac.Enforce && ac.ExpiresAt != nil && now.After(*ac.ExpiresAt)
}

// IPAllowed reports whether ip falls inside the bypass allow-list. A global
// disable matches every caller.
func (ac AccessControl) IPAllowed(ip string) bool {
	if ac.Global {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, entry := range ac.AllowedIPs {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if allowed, err := netip.ParseAddr(entry); err == nil && allowed == addr {
			return true
		}
	}
	return false
}

// GetSetting returns a raw settings value, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a raw settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// LoadAccessControl reads the enforcement setting, falling back to the
// enforcing default when none is stored.
func (s *Store) LoadAccessControl(ctx context.Context) (AccessControl, error) {
	raw, err := s.GetSetting(ctx, accessControlKey)
	if err == ErrNotFound {
		return DefaultAccessControl(), nil
	}
	if err != nil {
		return AccessControl{}, err
	}

	var ac AccessControl
	if err := json.Unmarshal([]byte(raw), &ac); err != nil {
		return AccessControl{}, fmt.Errorf("decode access control setting: %w", err)
	}
	return ac, nil
}

// SaveAccessControl persists the enforcement setting.
func (s *Store) SaveAccessControl(ctx context.Context, ac AccessControl) error {
	raw, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("encode access control setting: %w", err)
	}
	return s.SetSetting(ctx, accessControlKey, string(raw))
}

// ClearAccessControl resets the enforcement setting to the default.
func (s *Store) ClearAccessControl(ctx context.Context) error {
	return s.SaveAccessControl(ctx, DefaultAccessControl())
}
