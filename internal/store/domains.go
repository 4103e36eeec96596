package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

var domainSortColumns = map[string]string{
	"domain":     "domain",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"rl_minute":  "rl_minute",
	"rl_day":     "rl_day",
	"rl_month":   "rl_month",
}

// CreateDomain inserts a new authorized domain. The pattern is normalized
// and validated first; ErrDuplicate on an existing pattern.
func (s *Store) CreateDomain(ctx context.Context, d *model.Domain) error {
	d.Domain = model.NormalizeDomain(d.Domain)
	if err := model.ValidateDomainPattern(d.Domain); err != nil {
		return err
	}
	if err := d.RateLimits.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	const q = `INSERT INTO domains
		(domain, rl_minute, rl_day, rl_month, is_active, created_at, updated_at)
		VALUES
		(:domain, :rl_minute, :rl_day, :rl_month, :is_active, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, d)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert domain: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get domain id: %w", err)
	}
	d.ID = id
	return nil
}

// GetDomain returns a domain by ID.
func (s *Store) GetDomain(ctx context.Context, id int64) (*model.Domain, error) {
	var d model.Domain
	if err := s.db.GetContext(ctx, &d, "SELECT * FROM domains WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return &d, nil
}

// GetDomainForHost resolves a request host against the active authorized
// domains: exact match first, then suffix match against "."+pattern so an
// entry for example.com also authorizes api.example.com but never
// notexample.com.
func (s *Store) GetDomainForHost(ctx context.Context, host string) (*model.Domain, error) {
	host = model.NormalizeDomain(stripPort(host))
	if host == "" {
		return nil, ErrNotFound
	}

	var d model.Domain
	err := s.db.GetContext(ctx, &d,
		"SELECT * FROM domains WHERE domain = ? AND is_active = 1", host)
	if err == nil {
		return &d, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get domain for host: %w", err)
	}

	var actives []model.Domain
	if err := s.db.SelectContext(ctx, &actives,
		"SELECT * FROM domains WHERE is_active = 1"); err != nil {
		return nil, fmt.Errorf("list active domains: %w", err)
	}
	for i := range actives {
		if strings.HasSuffix(host, "."+actives[i].Domain) {
			return &actives[i], nil
		}
	}
	return nil, ErrNotFound
}

// stripPort removes a trailing :port from a Host header value.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// ListDomains returns one page of domains matching the filter, plus the
// total match count.
func (s *Store) ListDomains(ctx context.Context, filter ListFilter) ([]model.Domain, int64, error) {
	filter.normalize()
	where, args := filter.buildWhere([]string{"domain"})

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM domains"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count domains: %w", err)
	}

	q := "SELECT * FROM domains" + where +
		filter.orderClause(domainSortColumns, "created_at") +
		" LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	var domains []model.Domain
	if err := s.db.SelectContext(ctx, &domains, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list domains: %w", err)
	}
	return domains, total, nil
}

// UpdateDomain mutates the limits and active flag of a domain.
func (s *Store) UpdateDomain(ctx context.Context, d *model.Domain) error {
	if err := d.RateLimits.Validate(); err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()

	const q = `UPDATE domains SET
		rl_minute = :rl_minute, rl_day = :rl_day, rl_month = :rl_month,
		is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, d)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update domain rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDomainActive flips the active flag of a domain.
func (s *Store) SetDomainActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE domains SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set domain active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set domain active rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDomain hard-deletes a domain by ID.
func (s *Store) DeleteDomain(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM domains WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete domain rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
