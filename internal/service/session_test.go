package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

func newTestSessions(t *testing.T) (*SessionManager, *store.Store) {
	t.Helper()
	st, err := store.New("")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := NewSessionManager(st, time.Hour)
	m.sleep = func(time.Duration) {} // no real delays in tests
	return m, st
}

func seedAdmin(t *testing.T, st *store.Store, username, password string, mustChange bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	admin := &model.Admin{
		Username:           username,
		PasswordHash:       string(hash),
		IsActive:           true,
		MustChangePassword: mustChange,
	}
	if err := st.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
}

func TestLoginAndValidate(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", false)

	token, mustChange, err := m.Login(context.Background(), "ops", "Sekret99")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if mustChange {
		t.Error("unexpected must-change flag")
	}
	if len(token) != 64 {
		t.Errorf("token length %d, want 64 hex chars", len(token))
	}

	username, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if username != "ops" {
		t.Errorf("resolved %q", username)
	}

	admin, err := st.GetAdminByUsername(context.Background(), "ops")
	if err != nil {
		t.Fatalf("GetAdminByUsername: %v", err)
	}
	if admin.LastLoginAt == nil {
		t.Error("last login timestamp not recorded")
	}
}

func TestLoginFailures(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", false)

	var slept int
	m.sleep = func(time.Duration) { slept++ }

	if _, _, err := m.Login(context.Background(), "ops", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := m.Login(context.Background(), "ghost", "Sekret99"); err != ErrInvalidCredentials {
		t.Errorf("unknown user: got %v", err)
	}
	if slept != 2 {
		t.Errorf("failure delay applied %d times, want 2", slept)
	}
}

func TestSessionExpiry(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", false)

	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	token, _, err := m.Login(context.Background(), "ops", "Sekret99")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	clock = clock.Add(59 * time.Minute)
	if _, err := m.Validate(token); err != nil {
		t.Fatalf("session should still be valid: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := m.Validate(token); err != ErrSessionExpired {
		t.Errorf("got %v, want ErrSessionExpired", err)
	}
	if m.ActiveSessions() != 0 {
		t.Error("expired session not purged")
	}
}

func TestSessionCap(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", false)
	ctx := context.Background()

	for i := 0; i < MaxSessions; i++ {
		if _, _, err := m.Login(ctx, "ops", "Sekret99"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	// The cap refuses before even looking at the password.
	if _, _, err := m.Login(ctx, "ops", "totally-wrong"); err != ErrSessionLimit {
		t.Errorf("got %v, want ErrSessionLimit", err)
	}

	m.LogoutAll()
	if _, _, err := m.Login(ctx, "ops", "Sekret99"); err != nil {
		t.Errorf("login after logout-all: %v", err)
	}
}

func TestLogout(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", false)

	token, _, err := m.Login(context.Background(), "ops", "Sekret99")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	m.Logout(token)
	if _, err := m.Validate(token); err != ErrSessionExpired {
		t.Errorf("got %v after logout", err)
	}
	// Idempotent.
	m.Logout(token)
}

func TestChangePassword(t *testing.T) {
	m, st := newTestSessions(t)
	seedAdmin(t, st, "ops", "Sekret99", true)
	ctx := context.Background()

	token, mustChange, err := m.Login(ctx, "ops", "Sekret99")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !mustChange {
		t.Fatal("expected must-change flag on first login")
	}

	// Wrong current password leaves everything intact.
	if err := m.ChangePassword(ctx, "ops", "nope", "NewSekret1"); err != ErrInvalidCredentials {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := m.Login(ctx, "ops", "Sekret99"); err != nil {
		t.Fatalf("old password must still work after failed change: %v", err)
	}

	if err := m.ChangePassword(ctx, "ops", "Sekret99", "NewSekret1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Every session is revoked on success.
	if _, err := m.Validate(token); err != ErrSessionExpired {
		t.Errorf("old session alive after password change: %v", err)
	}
	if _, _, err := m.Login(ctx, "ops", "Sekret99"); err != ErrInvalidCredentials {
		t.Errorf("old password still accepted: %v", err)
	}
	_, mustChange, err = m.Login(ctx, "ops", "NewSekret1")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if mustChange {
		t.Error("must-change flag not cleared")
	}
}

func TestPasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"NewSekret1", true},
		{"Aa345678", true},
		{"short1A", false},       // too short
		{"nouppercase1", false},  // no uppercase
		{"NoDigitsHere", false},  // no digit
		{"", false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.password), func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok && err != nil {
				t.Errorf("rejected: %v", err)
			}
			var verr *model.ValidationError
			if !tc.ok && !errors.As(err, &verr) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}
