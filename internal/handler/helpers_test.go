package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// ---------------------------------------------------------------------------
// queryInt tests
// ---------------------------------------------------------------------------

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		key        string
		defaultVal int
		want       int
	}{
		{"returns default for missing param", "/test", "limit", 25, 25},
		{"parses integer param", "/test?limit=100", "limit", 25, 100},
		{"returns default for non-integer", "/test?limit=abc", "limit", 25, 25},
		{"parses zero", "/test?offset=0", "offset", 10, 0},
		{"parses negative", "/test?offset=-5", "offset", 0, -5},
		{"returns default for empty value", "/test?limit=", "limit", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryInt(r, tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("queryInt(%q, %d) = %d, want %d", tt.key, tt.defaultVal, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// queryFloat tests
// ---------------------------------------------------------------------------

func TestQueryFloat(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		key    string
		want   float64
		wantOK bool
	}{
		{"parses decimal", "/test?hour=15.5", "hour", 15.5, true},
		{"parses integer", "/test?lat=28", "lat", 28, true},
		{"parses negative", "/test?lon=-77.21", "lon", -77.21, true},
		{"missing param", "/test", "hour", 0, false},
		{"non-numeric", "/test?hour=noon", "hour", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got, ok := queryFloat(r, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("queryFloat(%q) = %v, %v, want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// queryBool tests
// ---------------------------------------------------------------------------

func TestQueryBool(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want bool
	}{
		{"true for 'true'", "/test?active=true", "active", true},
		{"true for '1'", "/test?active=1", "active", true},
		{"false for 'false'", "/test?active=false", "active", false},
		{"false for missing", "/test", "active", false},
		{"false for '0'", "/test?active=0", "active", false},
		{"false for empty", "/test?active=", "active", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryBool(r, tt.key)
			if got != tt.want {
				t.Errorf("queryBool(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// clampInt tests
// ---------------------------------------------------------------------------

func TestClampInt(t *testing.T) {
	tests := []struct {
		name string
		val  int
		min  int
		max  int
		want int
	}{
		{"within range", 50, 0, 100, 50},
		{"at min", 0, 0, 100, 0},
		{"at max", 100, 0, 100, 100},
		{"below min clamps to min", -5, 0, 100, 0},
		{"above max clamps to max", 500, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampInt(tt.val, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("clampInt(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// error writing tests
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "Invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":400`) {
		t.Errorf("expected code 400 in body: %s", body)
	}
	if !strings.Contains(body, `"message":"Invalid input"`) {
		t.Errorf("expected message in body: %s", body)
	}
}

func TestWriteStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &model.ValidationError{Field: "month", Reason: "out of range"}, http.StatusBadRequest},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict},
		{"unknown", http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeStoreError(w, tt.err, "api key")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	// Internal detail never leaks on the 500 path.
	w := httptest.NewRecorder()
	writeStoreError(w, http.ErrBodyNotAllowed, "api key")
	if strings.Contains(w.Body.String(), http.ErrBodyNotAllowed.Error()) {
		t.Error("500 body must not carry the underlying error text")
	}
}

// ---------------------------------------------------------------------------
// writeJSON tests
// ---------------------------------------------------------------------------

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), `"hello":"world"`) {
		t.Errorf("expected JSON body, got: %s", w.Body.String())
	}
}
