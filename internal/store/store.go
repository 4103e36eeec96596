// Package store persists AstroCalc's access-control state in SQLite:
// credentials (API keys and authorized domains), the per-window usage
// ledger, admin accounts, the enforcement setting, and diagnostic records.
package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// KeyPlaintextPrefix prefixes every generated API key so leaked keys are
// recognizable in logs and secret scanners.
const KeyPlaintextPrefix = "ac_"

// KeyPrefixLen is how many characters of a raw key are kept as the display
// prefix ("ac_" + 8 hex chars).
const KeyPrefixLen = 11

// HashPrefixLen is how many characters of a key's SHA-256 hash are retained
// in diagnostic records. The full hash never leaves the credentials table.
const HashPrefixLen = 12

// Store manages AstroCalc's durable state backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database under dataDir. Pass empty string for
// an in-memory database, used by tests.
func New(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "astrocalc.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes all access. SQLite has one writer
	// anyway, and the rate limiter's read-check-increment transaction
	// depends on writers never interleaving (see usage.go).
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashKey returns the hex-encoded SHA-256 hash of a raw API key. Lookups
// always go through this hash; plaintext keys are never compared or stored.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// HashKeyPrefix returns the short, non-reversible hash prefix recorded in
// diagnostics for a presented key.
func HashKeyPrefix(rawKey string) string {
	return HashKey(rawKey)[:HashPrefixLen]
}

// GenerateKey returns a new high-entropy API key: "ac_" plus 64 hex chars
// (32 random bytes).
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPlaintextPrefix + hex.EncodeToString(raw), nil
}

// KeyPrefix returns the identifying display prefix of a raw key.
func KeyPrefix(rawKey string) string {
	if len(rawKey) < KeyPrefixLen {
		return rawKey
	}
	return rawKey[:KeyPrefixLen]
}
