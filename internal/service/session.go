package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionLimit       = errors.New("too many active sessions")
)

const (
	// DefaultSessionTimeout bounds how long an admin token stays valid.
	DefaultSessionTimeout = 60 * time.Minute

	// MaxSessions caps live admin sessions. The cap is checked before
	// credentials so that a flood of login attempts cannot grow the map.
	MaxSessions = 10

	loginFailureDelay = 250 * time.Millisecond
)

// Session is one live admin session. Tokens are opaque random values; there
// is nothing to verify offline, which is what makes LogoutAll immediate.
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
}

// SessionManager owns the in-memory token map. Sessions do not survive a
// restart.
type SessionManager struct {
	store   *store.Store
	timeout time.Duration
	now     func() time.Time
	sleep   func(time.Duration)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(st *store.Store, timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionManager{
		store:    st,
		timeout:  timeout,
		now:      time.Now,
		sleep:    time.Sleep,
		sessions: make(map[string]*Session),
	}
}

// Timeout returns the configured session lifetime.
func (m *SessionManager) Timeout() time.Duration { return m.timeout }

// Login verifies the admin's password and issues a new opaque token. The
// returned bool reports whether the admin must change their password before
// doing anything else. Failed attempts pay a fixed delay regardless of which
// check failed.
func (m *SessionManager) Login(ctx context.Context, username, password string) (string, bool, error) {
	m.mu.Lock()
	m.purgeLocked()
	if len(m.sessions) >= MaxSessions {
		m.mu.Unlock()
		return "", false, ErrSessionLimit
	}
	m.mu.Unlock()

	admin, err := m.store.GetAdminByUsername(ctx, username)
	if err != nil || !admin.IsActive {
		m.sleep(loginFailureDelay)
		return "", false, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		m.sleep(loginFailureDelay)
		return "", false, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", false, err
	}

	m.mu.Lock()
	m.sessions[token] = &Session{Token: token, Username: username, CreatedAt: m.now()}
	m.mu.Unlock()

	// Best effort; a failed timestamp update must not block the login.
	_ = m.store.UpdateAdminLastLogin(ctx, username)

	return token, admin.MustChangePassword, nil
}

// Validate resolves a token to its admin username, purging expired sessions
// as a side effect.
func (m *SessionManager) Validate(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()

	sess, ok := m.sessions[token]
	if !ok {
		return "", ErrSessionExpired
	}
	return sess.Username, nil
}

// Logout revokes one token. Unknown tokens are a no-op.
func (m *SessionManager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// LogoutAll revokes every live session.
func (m *SessionManager) LogoutAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[string]*Session)
	return n
}

// ActiveSessions reports the current live session count after purging.
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	return len(m.sessions)
}

// ChangePassword verifies the current password, enforces the password policy
// on the new one, persists the new hash and revokes every session. Callers
// must log in again with the new password.
func (m *SessionManager) ChangePassword(ctx context.Context, username, current, next string) error {
	admin, err := m.store.GetAdminByUsername(ctx, username)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(current)); err != nil {
		m.sleep(loginFailureDelay)
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := m.store.UpdateAdminPassword(ctx, username, string(hash)); err != nil {
		return err
	}

	m.LogoutAll()
	return nil
}

// ValidatePassword enforces the admin password policy: at least 8 characters
// with at least one digit and one uppercase letter.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return &model.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		return &model.ValidationError{Field: "password", Reason: "must contain at least one digit"}
	}
	if !hasUpper {
		return &model.ValidationError{Field: "password", Reason: "must contain at least one uppercase letter"}
	}
	return nil
}

func (m *SessionManager) purgeLocked() {
	cutoff := m.now().Add(-m.timeout)
	for token, sess := range m.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(m.sessions, token)
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
