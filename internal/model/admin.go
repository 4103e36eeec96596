package model

import "time"

// Admin represents an administrative user who manages credentials and the
// enforcement toggle. Passwords are stored as bcrypt hashes.
type Admin struct {
	ID                 int64      `json:"id" db:"id"`
	Username           string     `json:"username" db:"username"`
	PasswordHash       string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	IsActive           bool       `json:"is_active" db:"is_active"`
	MustChangePassword bool       `json:"must_change_password" db:"must_change_password"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}
