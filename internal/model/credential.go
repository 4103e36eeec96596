package model

import (
	"fmt"
	"strings"
	"time"
)

// Identifier kinds used by the usage ledger and diagnostics to distinguish
// the two credential variants.
const (
	KindAPIKey = "api_key"
	KindDomain = "domain"
)

// RateLimits holds the three per-window request ceilings attached to a
// credential. A limit of 0 means the window always denies; negative values
// are rejected at validation time.
type RateLimits struct {
	PerMinute int `json:"requests_per_minute" db:"rl_minute"`
	PerDay    int `json:"requests_per_day" db:"rl_day"`
	PerMonth  int `json:"requests_per_month" db:"rl_month"`
}

// Validate rejects negative limits.
func (l RateLimits) Validate() error {
	if l.PerMinute < 0 {
		return &ValidationError{Field: "requests_per_minute", Reason: "must not be negative"}
	}
	if l.PerDay < 0 {
		return &ValidationError{Field: "requests_per_day", Reason: "must not be negative"}
	}
	if l.PerMonth < 0 {
		return &ValidationError{Field: "requests_per_month", Reason: "must not be negative"}
	}
	return nil
}

// APIKey represents a secret-bearing credential. The raw key is never
// stored; only a SHA-256 hash and a short prefix for identification are
// persisted.
type APIKey struct {
	ID          int64  `json:"id" db:"id"`
	KeyHash     string `json:"-" db:"key_hash"`             // SHA-256 hash, never expose
	KeyPrefix   string `json:"key_prefix" db:"key_prefix"`  // first chars for identification
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	RateLimits
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Domain represents a keyless credential: a hostname (or parent domain,
// matching all its subdomains) allowed to call the API based on request
// headers alone. Header-derived identity is spoofable, so domains are a
// weaker trust tier than a possessed secret and are disabled by default.
type Domain struct {
	ID     int64  `json:"id" db:"id"`
	Domain string `json:"domain" db:"domain"`
	RateLimits
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeDomain lowercases and strips surrounding whitespace and a single
// trailing dot from a domain pattern.
func NormalizeDomain(pattern string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(pattern)), ".")
}

// ValidateDomainPattern checks that the pattern looks like a registrable
// hostname: non-empty, no scheme, no path, no port, no wildcard characters.
func ValidateDomainPattern(pattern string) error {
	if pattern == "" {
		return &ValidationError{Field: "domain", Reason: "must not be empty"}
	}
	if strings.ContainsAny(pattern, " \t/\\@:*?") {
		return &ValidationError{Field: "domain", Reason: fmt.Sprintf("%q is not a plain hostname", pattern)}
	}
	if strings.HasPrefix(pattern, ".") || strings.Contains(pattern, "..") {
		return &ValidationError{Field: "domain", Reason: fmt.Sprintf("%q has an empty label", pattern)}
	}
	return nil
}
