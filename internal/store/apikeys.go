package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

// apiKeySortColumns is the enumerated allow-list of sortable fields on the
// api_keys table. Raw caller input never reaches the ORDER BY clause.
var apiKeySortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"rl_minute":  "rl_minute",
	"rl_day":     "rl_day",
	"rl_month":   "rl_month",
}

// CreateAPIKey inserts a new API key record. The KeyHash and KeyPrefix must
// already be set (use GenerateKey / HashKey / KeyPrefix). The ID, CreatedAt,
// and UpdatedAt fields are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if err := key.RateLimits.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	const q = `INSERT INTO api_keys
		(key_hash, key_prefix, name, description, rl_minute, rl_day, rl_month, is_active, created_at, updated_at)
		VALUES
		(:key_hash, :key_prefix, :name, :description, :rl_minute, :rl_day, :rl_month, :is_active, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns one page of API keys matching the filter, plus the
// total match count for pagination.
func (s *Store) ListAPIKeys(ctx context.Context, filter ListFilter) ([]model.APIKey, int64, error) {
	filter.normalize()
	where, args := filter.buildWhere([]string{"name", "description"})

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM api_keys"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count api keys: %w", err)
	}

	q := "SELECT * FROM api_keys" + where +
		filter.orderClause(apiKeySortColumns, "created_at") +
		" LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list api keys: %w", err)
	}
	return keys, total, nil
}

// UpdateAPIKey mutates the metadata, limits, and active flag of a key.
func (s *Store) UpdateAPIKey(ctx context.Context, key *model.APIKey) error {
	if err := key.RateLimits.Validate(); err != nil {
		return err
	}
	key.UpdatedAt = time.Now().UTC()

	const q = `UPDATE api_keys SET
		name = :name, description = :description,
		rl_minute = :rl_minute, rl_day = :rl_day, rl_month = :rl_month,
		is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAPIKeyActive flips the active flag of a key.
func (s *Store) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set api key active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set api key active rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey hard-deletes a key by ID.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsedName is intentionally absent: the request path never
// mutates credential rows. Usage is accounted in the ledger tables only.

// bulkTables names the two credential tables addressable by bulk mutations.
var bulkTables = map[string]string{
	model.KindAPIKey: "api_keys",
	model.KindDomain: "domains",
}

// BulkSetActive activates or deactivates up to MaxBulkIDs credentials of one
// kind in a single transaction. Returns the number of rows changed.
func (s *Store) BulkSetActive(ctx context.Context, kind string, ids []int64, active bool) (int64, error) {
	return s.bulkExec(ctx, kind, ids, func(table, in string, args []interface{}) (string, []interface{}) {
		q := fmt.Sprintf("UPDATE %s SET is_active = ?, updated_at = ? WHERE id IN (%s)", table, in)
		return q, append([]interface{}{active, time.Now().UTC()}, args...)
	})
}

// BulkDelete hard-deletes up to MaxBulkIDs credentials of one kind.
func (s *Store) BulkDelete(ctx context.Context, kind string, ids []int64) (int64, error) {
	return s.bulkExec(ctx, kind, ids, func(table, in string, args []interface{}) (string, []interface{}) {
		return fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, in), args
	})
}

// BulkUpdateLimits rewrites the rate limits of up to MaxBulkIDs credentials.
func (s *Store) BulkUpdateLimits(ctx context.Context, kind string, ids []int64, limits model.RateLimits) (int64, error) {
	if err := limits.Validate(); err != nil {
		return 0, err
	}
	return s.bulkExec(ctx, kind, ids, func(table, in string, args []interface{}) (string, []interface{}) {
		q := fmt.Sprintf(
			"UPDATE %s SET rl_minute = ?, rl_day = ?, rl_month = ?, updated_at = ? WHERE id IN (%s)",
			table, in)
		head := []interface{}{limits.PerMinute, limits.PerDay, limits.PerMonth, time.Now().UTC()}
		return q, append(head, args...)
	})
}

func (s *Store) bulkExec(ctx context.Context, kind string, ids []int64,
	build func(table, in string, args []interface{}) (string, []interface{})) (int64, error) {

	table, ok := bulkTables[kind]
	if !ok {
		return 0, &model.ValidationError{Field: "kind", Reason: "must be api_key or domain"}
	}
	if len(ids) == 0 {
		return 0, &model.ValidationError{Field: "ids", Reason: "must not be empty"}
	}
	if len(ids) > MaxBulkIDs {
		return 0, &model.ValidationError{Field: "ids", Reason: fmt.Sprintf("at most %d per call", MaxBulkIDs)}
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	q, qargs := build(table, strings.Join(placeholders, ","), args)

	result, err := s.db.ExecContext(ctx, q, qargs...)
	if err != nil {
		return 0, fmt.Errorf("bulk %s mutation: %w", kind, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk rows affected: %w", err)
	}
	return n, nil
}
