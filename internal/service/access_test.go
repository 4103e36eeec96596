package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sivanadi/AstroCalc/internal/diag"
	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New("")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := diag.New(st, log)
	recorder.Start()
	t.Cleanup(recorder.Shutdown)

	return NewEngine(st, recorder, log), st
}

func seedKey(t *testing.T, st *store.Store, limits model.RateLimits, active bool) string {
	t.Helper()
	plaintext, err := store.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key := &model.APIKey{
		KeyHash:    store.HashKey(plaintext),
		KeyPrefix:  store.KeyPrefix(plaintext),
		Name:       "test key",
		RateLimits: limits,
		IsActive:   active,
	}
	if err := st.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return plaintext
}

func chartRequest(rawKey string) AccessRequest {
	return AccessRequest{
		Path:       "/chart",
		ClientIP:   "203.0.113.9",
		RequestID:  "test-req",
		RawKey:     rawKey,
		AuthScheme: SchemeBearer,
	}
}

func lastDiagnostic(t *testing.T, e *Engine, st *store.Store) model.DiagnosticRecord {
	t.Helper()
	e.recorder.Flush()
	recs, _, err := st.ListDiagnostics(context.Background(), "", 1, 0)
	if err != nil {
		t.Fatalf("ListDiagnostics: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no diagnostic record written")
	}
	return recs[0]
}

func TestAuthorizeValidKey(t *testing.T) {
	e, st := newTestEngine(t)
	raw := seedKey(t, st, model.RateLimits{PerMinute: 10, PerDay: 100, PerMonth: 1000}, true)

	v := e.Authorize(context.Background(), chartRequest(raw))
	if !v.Allowed() || v.Outcome != model.OutcomeAllowed || v.Reason != model.ReasonOK {
		t.Fatalf("verdict: %+v", v)
	}
	if v.Decision == nil || v.Decision.Counts.Minute != 1 {
		t.Errorf("decision not carried: %+v", v.Decision)
	}

	rec := lastDiagnostic(t, e, st)
	if rec.Outcome != model.OutcomeAllowed || !rec.KeyPresented || !rec.KeyExists || !rec.KeyActive {
		t.Errorf("diagnostic: %+v", rec)
	}
	if rec.KeyHashPrefix == "" || len(rec.KeyHashPrefix) != store.HashPrefixLen {
		t.Errorf("hash prefix %q", rec.KeyHashPrefix)
	}
}

func TestAuthorizeNoCredential(t *testing.T) {
	e, st := newTestEngine(t)

	v := e.Authorize(context.Background(), chartRequest(""))
	if v.Status != http.StatusForbidden || v.Reason != model.ReasonNoCredential {
		t.Fatalf("verdict: %+v", v)
	}

	rec := lastDiagnostic(t, e, st)
	if rec.KeyPresented || rec.Reason != model.ReasonNoCredential {
		t.Errorf("diagnostic: %+v", rec)
	}
}

func TestAuthorizeUnknownKey(t *testing.T) {
	e, st := newTestEngine(t)

	v := e.Authorize(context.Background(), chartRequest("ac_not_a_real_key"))
	if v.Status != http.StatusForbidden || v.Reason != model.ReasonInvalidCredential {
		t.Fatalf("verdict: %+v", v)
	}

	rec := lastDiagnostic(t, e, st)
	if !rec.KeyPresented || rec.KeyExists {
		t.Errorf("diagnostic: %+v", rec)
	}
	// Redaction: the raw key never lands in the record.
	if rec.KeyHashPrefix == "ac_not_a_real" || len(rec.KeyHashPrefix) != store.HashPrefixLen {
		t.Errorf("hash prefix %q", rec.KeyHashPrefix)
	}
}

func TestAuthorizeInactiveKey(t *testing.T) {
	e, st := newTestEngine(t)
	raw := seedKey(t, st, model.RateLimits{PerMinute: 10, PerDay: 100, PerMonth: 1000}, false)

	v := e.Authorize(context.Background(), chartRequest(raw))
	if v.Status != http.StatusForbidden || v.Reason != model.ReasonInactive {
		t.Fatalf("verdict: %+v", v)
	}

	rec := lastDiagnostic(t, e, st)
	if !rec.KeyExists || rec.KeyActive {
		t.Errorf("diagnostic: %+v", rec)
	}
}

func TestAuthorizeRateLimited(t *testing.T) {
	e, st := newTestEngine(t)
	raw := seedKey(t, st, model.RateLimits{PerMinute: 2, PerDay: 100, PerMonth: 1000}, true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if v := e.Authorize(ctx, chartRequest(raw)); !v.Allowed() {
			t.Fatalf("call %d denied: %+v", i, v)
		}
	}
	v := e.Authorize(ctx, chartRequest(raw))
	if v.Status != http.StatusTooManyRequests || v.Reason != model.ReasonRateLimitedMinute {
		t.Fatalf("verdict: %+v", v)
	}
	if v.Decision == nil || v.Decision.ResetHint == "" {
		t.Error("limited verdict must carry a reset hint")
	}

	rec := lastDiagnostic(t, e, st)
	if rec.Reason != model.ReasonRateLimitedMinute || rec.CountersJSON == "" {
		t.Errorf("diagnostic: %+v", rec)
	}
}

func TestGlobalBypassSkipsCredentials(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	until := time.Now().UTC().Add(30 * time.Minute)
	ac := store.AccessControl{Enforce: false, Global: true, ExpiresAt: &until}
	if err := st.SaveAccessControl(ctx, ac); err != nil {
		t.Fatalf("SaveAccessControl: %v", err)
	}

	v := e.Authorize(ctx, chartRequest(""))
	if !v.Allowed() || v.Outcome != model.OutcomeEnforcementDisabled {
		t.Fatalf("verdict: %+v", v)
	}

	rec := lastDiagnostic(t, e, st)
	if rec.Outcome != model.OutcomeEnforcementDisabled {
		t.Errorf("diagnostic outcome %q", rec.Outcome)
	}
}

func TestScopedBypassMatchesOnlyListedIPs(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	until := time.Now().UTC().Add(30 * time.Minute)
	ac := store.AccessControl{Enforce: false, ExpiresAt: &until, AllowedIPs: []string{"203.0.113.9"}}
	if err := st.SaveAccessControl(ctx, ac); err != nil {
		t.Fatalf("SaveAccessControl: %v", err)
	}

	v := e.Authorize(ctx, chartRequest(""))
	if !v.Allowed() || v.Outcome != model.OutcomeBypassActive {
		t.Fatalf("listed IP: %+v", v)
	}

	other := chartRequest("")
	other.ClientIP = "198.51.100.1"
	if v := e.Authorize(ctx, other); v.Status != http.StatusForbidden {
		t.Fatalf("unlisted IP must stay enforced: %+v", v)
	}
}

func TestExpiredBypassIsClearedOnRead(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }

	until := clock.Add(30 * time.Minute)
	ac := store.AccessControl{Enforce: false, Global: true, ExpiresAt: &until}
	if err := st.SaveAccessControl(ctx, ac); err != nil {
		t.Fatalf("SaveAccessControl: %v", err)
	}

	if v := e.Authorize(ctx, chartRequest("")); v.Outcome != model.OutcomeEnforcementDisabled {
		t.Fatalf("inside window: %+v", v)
	}

	clock = clock.Add(31 * time.Minute)
	if v := e.Authorize(ctx, chartRequest("")); v.Status != http.StatusForbidden {
		t.Fatalf("after window: %+v", v)
	}

	// The expired bypass was removed from the store, not just ignored.
	got, err := st.LoadAccessControl(ctx)
	if err != nil {
		t.Fatalf("LoadAccessControl: %v", err)
	}
	if !got.Enforce {
		t.Error("expired bypass still persisted")
	}
}

func TestDomainAuthDisabledByDefault(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	d := &model.Domain{Domain: "example.com", RateLimits: model.RateLimits{PerMinute: 10, PerDay: 100, PerMonth: 1000}, IsActive: true}
	if err := st.CreateDomain(ctx, d); err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}

	req := chartRequest("")
	req.Origin = "https://app.example.com"
	if v := e.Authorize(ctx, req); v.Status != http.StatusForbidden {
		t.Fatalf("domain auth should be off by default: %+v", v)
	}

	e.AllowDomainAuth = true
	v := e.Authorize(ctx, req)
	if !v.Allowed() {
		t.Fatalf("verdict with domain auth on: %+v", v)
	}
	if v.Domain == nil || v.Domain.Domain != "example.com" {
		t.Errorf("matched domain: %+v", v.Domain)
	}

	rec := lastDiagnostic(t, e, st)
	if rec.AuthScheme != SchemeDomain || rec.MatchedDomain != "example.com" {
		t.Errorf("diagnostic: %+v", rec)
	}
}

func TestDomainRateLimitsApply(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	e.AllowDomainAuth = true

	d := &model.Domain{Domain: "example.com", RateLimits: model.RateLimits{PerMinute: 1, PerDay: 100, PerMonth: 1000}, IsActive: true}
	if err := st.CreateDomain(ctx, d); err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}

	req := chartRequest("")
	req.Referer = "https://example.com/app/page"
	if v := e.Authorize(ctx, req); !v.Allowed() {
		t.Fatalf("first call: %+v", v)
	}
	if v := e.Authorize(ctx, req); v.Status != http.StatusTooManyRequests {
		t.Fatalf("second call should be limited: %+v", v)
	}
}

func TestExtractCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chart", nil)
	r.Header.Set("Authorization", "Bearer ac_abc")
	r.Header.Set("X-API-Key", "ac_xyz")

	raw, scheme := ExtractCredential(r)
	if raw != "ac_abc" || scheme != SchemeBearer {
		t.Errorf("got %q/%q, Bearer should win", raw, scheme)
	}

	r.Header.Del("Authorization")
	raw, scheme = ExtractCredential(r)
	if raw != "ac_xyz" || scheme != SchemeHeader {
		t.Errorf("got %q/%q", raw, scheme)
	}

	r.Header.Del("X-API-Key")
	if raw, scheme = ExtractCredential(r); raw != "" || scheme != SchemeNone {
		t.Errorf("got %q/%q for bare request", raw, scheme)
	}
}
