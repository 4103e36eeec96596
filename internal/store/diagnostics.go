package store

import (
	"context"
	"fmt"

	"github.com/sivanadi/AstroCalc/internal/model"
)

// InsertDiagnostic appends one access-decision record. Callers on the
// request path go through diag.Recorder, which swallows errors from here.
func (s *Store) InsertDiagnostic(ctx context.Context, rec *model.DiagnosticRecord) error {
	const q = `INSERT INTO diagnostics
		(ts, request_id, path, client_ip, origin, user_agent, auth_scheme,
		 key_presented, key_hash_prefix, key_exists, key_active, matched_domain,
		 outcome, reason, counters_json)
		VALUES
		(:ts, :request_id, :path, :client_ip, :origin, :user_agent, :auth_scheme,
		 :key_presented, :key_hash_prefix, :key_exists, :key_active, :matched_domain,
		 :outcome, :reason, :counters_json)`

	result, err := s.db.NamedExecContext(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("insert diagnostic: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get diagnostic id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListDiagnostics returns the most recent diagnostic records, newest first,
// optionally filtered by outcome.
func (s *Store) ListDiagnostics(ctx context.Context, outcome model.Outcome, limit, offset int) ([]model.DiagnosticRecord, int64, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []interface{}{}
	if outcome != "" {
		where = " WHERE outcome = ?"
		args = append(args, outcome)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM diagnostics"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count diagnostics: %w", err)
	}

	var records []model.DiagnosticRecord
	q := "SELECT * FROM diagnostics" + where + " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &records, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list diagnostics: %w", err)
	}
	return records, total, nil
}
