package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sivanadi/AstroCalc/internal/diag"
	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/ratelimit"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// Auth schemes recorded on diagnostic rows.
const (
	SchemeBearer = "bearer"
	SchemeHeader = "x-api-key"
	SchemeDomain = "domain"
	SchemeNone   = ""
)

// AccessRequest is everything the engine needs to know about one inbound
// request. Handlers build it from the raw *http.Request; keeping the engine
// off http.Request directly keeps it trivially testable.
type AccessRequest struct {
	Path       string
	ClientIP   string
	Origin     string
	Referer    string
	Host       string
	UserAgent  string
	RequestID  string
	RawKey     string
	AuthScheme string
}

// Verdict is the engine's answer for one request.
type Verdict struct {
	Outcome model.Outcome
	Reason  string
	Status  int

	// Decision is set when the verdict was reached by the rate limiter,
	// on both allowed and limited requests.
	Decision *ratelimit.Decision

	Key    *model.APIKey
	Domain *model.Domain
}

// Allowed reports whether the request may proceed.
func (v Verdict) Allowed() bool {
	return v.Status == http.StatusOK
}

// Engine decides whether a chart request may proceed. Every decision, whatever
// its outcome, produces exactly one diagnostic record.
type Engine struct {
	store    *store.Store
	recorder *diag.Recorder
	log      *slog.Logger
	now      func() time.Time

	// AllowDomainAuth admits requests on Origin/Referer/Host matching an
	// authorized domain when no key is presented. Off by default: those
	// headers are caller-controlled and this tier is spoofable.
	AllowDomainAuth bool
}

func NewEngine(st *store.Store, recorder *diag.Recorder, log *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		recorder: recorder,
		log:      log,
		now:      time.Now,
	}
}

// ExtractCredential pulls the API key out of the request headers.
// Authorization: Bearer wins over X-API-Key when both are present.
func ExtractCredential(r *http.Request) (rawKey, scheme string) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(rest), SchemeBearer
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, SchemeHeader
	}
	return "", SchemeNone
}

// NewAccessRequest builds an AccessRequest from an inbound HTTP request.
func NewAccessRequest(r *http.Request, clientIP, requestID string) AccessRequest {
	rawKey, scheme := ExtractCredential(r)
	return AccessRequest{
		Path:       r.URL.Path,
		ClientIP:   clientIP,
		Origin:     r.Header.Get("Origin"),
		Referer:    r.Header.Get("Referer"),
		Host:       r.Host,
		UserAgent:  r.UserAgent(),
		RequestID:  requestID,
		RawKey:     rawKey,
		AuthScheme: scheme,
	}
}

// Authorize runs the access decision state machine: enforcement bypass, then
// credential presence, lookup, active flag, and finally the rate limiter.
func (e *Engine) Authorize(ctx context.Context, req AccessRequest) Verdict {
	now := e.now().UTC()

	ac, err := e.store.LoadAccessControl(ctx)
	if err != nil {
		e.log.Error("loading access control setting", "error", err)
		ac = store.DefaultAccessControl()
	}
	if ac.Expired(now) {
		if err := e.store.ClearAccessControl(ctx); err != nil {
			e.log.Error("clearing expired bypass", "error", err)
		}
		ac = store.DefaultAccessControl()
	}

	if !ac.Enforce {
		if ac.Global {
			return e.record(req, Verdict{
				Outcome: model.OutcomeEnforcementDisabled,
				Reason:  model.ReasonEnforcementDisabled,
				Status:  http.StatusOK,
			}, nil)
		}
		if ac.IPAllowed(req.ClientIP) {
			return e.record(req, Verdict{
				Outcome: model.OutcomeBypassActive,
				Reason:  model.ReasonBypassActive,
				Status:  http.StatusOK,
			}, nil)
		}
		// Bypass is scoped to other IPs; this caller is enforced as usual.
	}

	if req.RawKey != "" {
		return e.authorizeKey(ctx, now, req)
	}
	if e.AllowDomainAuth {
		if d := e.matchDomain(ctx, req); d != nil {
			return e.authorizeDomain(ctx, now, req, d)
		}
	}
	return e.record(req, Verdict{
		Outcome: model.OutcomeDenied,
		Reason:  model.ReasonNoCredential,
		Status:  http.StatusForbidden,
	}, nil)
}

func (e *Engine) authorizeKey(ctx context.Context, now time.Time, req AccessRequest) Verdict {
	hash := store.HashKey(req.RawKey)

	key, err := e.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if err != store.ErrNotFound {
			e.log.Error("api key lookup", "error", err)
		}
		return e.record(req, Verdict{
			Outcome: model.OutcomeDenied,
			Reason:  model.ReasonInvalidCredential,
			Status:  http.StatusForbidden,
		}, nil)
	}
	if !key.IsActive {
		return e.record(req, Verdict{
			Outcome: model.OutcomeDenied,
			Reason:  model.ReasonInactive,
			Status:  http.StatusForbidden,
			Key:     key,
		}, nil)
	}

	decision, err := e.store.CheckAndIncrement(ctx, now, key.KeyHash, model.KindAPIKey, key.RateLimits)
	if err != nil {
		e.log.Error("usage check", "error", err, "key_prefix", key.KeyPrefix)
		return e.record(req, Verdict{
			Outcome: model.OutcomeDenied,
			Reason:  model.ReasonInvalidCredential,
			Status:  http.StatusInternalServerError,
			Key:     key,
		}, nil)
	}
	return e.record(req, e.limiterVerdict(decision, key, nil), &decision)
}

func (e *Engine) authorizeDomain(ctx context.Context, now time.Time, req AccessRequest, d *model.Domain) Verdict {
	decision, err := e.store.CheckAndIncrement(ctx, now, d.Domain, model.KindDomain, d.RateLimits)
	if err != nil {
		e.log.Error("usage check", "error", err, "domain", d.Domain)
		return e.record(req, Verdict{
			Outcome: model.OutcomeDenied,
			Reason:  model.ReasonInvalidCredential,
			Status:  http.StatusInternalServerError,
			Domain:  d,
		}, nil)
	}
	return e.record(req, e.limiterVerdict(decision, nil, d), &decision)
}

func (e *Engine) limiterVerdict(decision ratelimit.Decision, key *model.APIKey, d *model.Domain) Verdict {
	v := Verdict{Decision: &decision, Key: key, Domain: d}
	if decision.Allowed {
		v.Outcome = model.OutcomeAllowed
		v.Reason = model.ReasonOK
		v.Status = http.StatusOK
		return v
	}
	v.Outcome = model.OutcomeDenied
	v.Reason = decision.Reason()
	v.Status = http.StatusTooManyRequests
	return v
}

// matchDomain tries Origin, then Referer, then the Host header, returning the
// first authorized domain match.
func (e *Engine) matchDomain(ctx context.Context, req AccessRequest) *model.Domain {
	for _, candidate := range []string{originHost(req.Origin), originHost(req.Referer), req.Host} {
		if candidate == "" {
			continue
		}
		d, err := e.store.GetDomainForHost(ctx, candidate)
		if err == nil {
			return d
		}
		if err != store.ErrNotFound {
			e.log.Error("domain lookup", "error", err, "host", candidate)
		}
	}
	return nil
}

// originHost extracts the bare host from an Origin or Referer value.
func originHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

// record emits the diagnostic entry for a verdict and passes the verdict
// through. Failures inside the recorder never surface here.
func (e *Engine) record(req AccessRequest, v Verdict, decision *ratelimit.Decision) Verdict {
	rec := &model.DiagnosticRecord{
		Timestamp:    e.now().UTC(),
		RequestID:    req.RequestID,
		Path:         req.Path,
		ClientIP:     req.ClientIP,
		Origin:       req.Origin,
		UserAgent:    req.UserAgent,
		AuthScheme:   req.AuthScheme,
		KeyPresented: req.RawKey != "",
		Outcome:      v.Outcome,
		Reason:       v.Reason,
	}
	if req.RawKey != "" {
		rec.KeyHashPrefix = store.HashKeyPrefix(req.RawKey)
	}
	if v.Key != nil {
		rec.KeyExists = true
		rec.KeyActive = v.Key.IsActive
	}
	if v.Domain != nil {
		rec.AuthScheme = SchemeDomain
		rec.MatchedDomain = v.Domain.Domain
	}
	if decision != nil {
		if b, err := json.Marshal(decision.Counts); err == nil {
			rec.CountersJSON = string(b)
		}
	}
	e.recorder.Record(rec)
	return v
}
