package model

import "time"

// Outcome is the terminal state of an access decision.
type Outcome string

const (
	OutcomeAllowed             Outcome = "allowed"
	OutcomeDenied              Outcome = "denied"
	OutcomeBypassActive        Outcome = "bypass_active"
	OutcomeEnforcementDisabled Outcome = "enforcement_disabled"
)

// Machine-readable reason codes attached to diagnostic records.
const (
	ReasonOK                  = "ok"
	ReasonNoCredential        = "no_credential"
	ReasonInvalidCredential   = "invalid_credential"
	ReasonInactive            = "inactive"
	ReasonRateLimitedMinute   = "rate_limited_minute"
	ReasonRateLimitedDay      = "rate_limited_day"
	ReasonRateLimitedMonth    = "rate_limited_month"
	ReasonBypassActive        = "bypass_active"
	ReasonEnforcementDisabled = "enforcement_disabled"
)

// DiagnosticRecord is an append-only audit entry written for every access
// decision, allowed or denied. Key material is redacted: only a short prefix
// of the key's hash is ever stored.
type DiagnosticRecord struct {
	ID            int64     `json:"id" db:"id"`
	Timestamp     time.Time `json:"timestamp" db:"ts"`
	RequestID     string    `json:"request_id" db:"request_id"`
	Path          string    `json:"path" db:"path"`
	ClientIP      string    `json:"client_ip" db:"client_ip"`
	Origin        string    `json:"origin" db:"origin"`
	UserAgent     string    `json:"user_agent" db:"user_agent"`
	AuthScheme    string    `json:"auth_scheme" db:"auth_scheme"`
	KeyPresented  bool      `json:"key_presented" db:"key_presented"`
	KeyHashPrefix string    `json:"key_hash_prefix" db:"key_hash_prefix"`
	KeyExists     bool      `json:"key_exists" db:"key_exists"`
	KeyActive     bool      `json:"key_active" db:"key_active"`
	MatchedDomain string    `json:"matched_domain" db:"matched_domain"`
	Outcome       Outcome   `json:"outcome" db:"outcome"`
	Reason        string    `json:"reason" db:"reason"`
	CountersJSON  string    `json:"counters,omitempty" db:"counters_json"`
}
