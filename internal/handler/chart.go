package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/sivanadi/AstroCalc/internal/ephemeris"
	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/server/middleware"
	"github.com/sivanadi/AstroCalc/internal/service"
)

// ChartHandler gates chart requests through the access engine and delegates
// the computation to the configured calculator.
type ChartHandler struct {
	engine *service.Engine
	calc   ephemeris.Calculator
	logger *slog.Logger
}

func NewChartHandler(engine *service.Engine, calc ephemeris.Calculator, logger *slog.Logger) *ChartHandler {
	return &ChartHandler{engine: engine, calc: calc, logger: logger}
}

// chartParams mirrors the query parameters for POST bodies.
type chartParams struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Day         int     `json:"day"`
	Hour        float64 `json:"hour"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Ayanamsha   string  `json:"ayanamsha,omitempty"`
	HouseSystem string  `json:"house_system,omitempty"`
}

// Chart serves GET and POST /chart. Every request passes through the access
// engine first; denial responses are written before any parameter parsing so
// an unauthorized caller learns nothing about the computation surface.
func (h *ChartHandler) Chart(w http.ResponseWriter, r *http.Request) {
	verdict := h.engine.Authorize(r.Context(),
		service.NewAccessRequest(r, clientIP(r), middleware.GetRequestID(r.Context())))
	if !verdict.Allowed() {
		h.writeDenial(w, verdict)
		return
	}

	params, err := h.params(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ayan, err := ephemeris.ParseAyanamsha(params.Ayanamsha)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hs, err := ephemeris.ParseHouseSystem(params.HouseSystem)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := ephemeris.Request{
		Year: params.Year, Month: params.Month, Day: params.Day,
		Hour: params.Hour, Lat: params.Lat, Lon: params.Lon,
		Ayanamsha: ayan, HouseSystem: hs,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.calc.Chart(r.Context(), req)
	if err != nil {
		h.logger.Error("chart computation", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "chart computation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ChartHandler) params(r *http.Request) (chartParams, error) {
	if r.Method == http.MethodPost {
		var p chartParams
		if err := readJSON(r, &p); err != nil {
			return p, &model.ValidationError{Field: "body", Reason: "malformed JSON"}
		}
		return p, nil
	}

	var p chartParams
	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"year", &p.Year}, {"month", &p.Month}, {"day", &p.Day},
	} {
		v := queryString(r, field.name)
		if v == "" {
			return p, &model.ValidationError{Field: field.name, Reason: "required"}
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, &model.ValidationError{Field: field.name, Reason: "must be an integer"}
		}
		*field.dst = n
	}
	for _, field := range []struct {
		name string
		dst  *float64
	}{
		{"hour", &p.Hour}, {"lat", &p.Lat}, {"lon", &p.Lon},
	} {
		f, ok := queryFloat(r, field.name)
		if !ok {
			return p, &model.ValidationError{Field: field.name, Reason: "required and must be numeric"}
		}
		*field.dst = f
	}
	p.Ayanamsha = queryString(r, "ayanamsha")
	p.HouseSystem = queryString(r, "house_system")
	return p, nil
}

// writeDenial translates a verdict into the client-facing denial response.
func (h *ChartHandler) writeDenial(w http.ResponseWriter, v service.Verdict) {
	switch v.Status {
	case http.StatusTooManyRequests:
		d := v.Decision
		if d.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests,
			"rate limit exceeded: "+string(d.Window)+" window, "+d.ResetHint,
			map[string]interface{}{
				"window":  string(d.Window),
				"current": d.Current,
				"limit":   d.Limit,
			})
	case http.StatusForbidden:
		writeError(w, http.StatusForbidden, denialMessage(v.Reason))
	default:
		writeError(w, v.Status, "access check failed")
	}
}

func denialMessage(reason string) string {
	switch reason {
	case model.ReasonNoCredential:
		return "an API key is required: pass it as a Bearer token or X-API-Key header"
	case model.ReasonInvalidCredential:
		return "the provided API key is not recognized"
	case model.ReasonInactive:
		return "the provided API key has been deactivated"
	}
	return "access denied"
}

// clientIP returns the remote address without its port. The RealIP
// middleware has already substituted X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
