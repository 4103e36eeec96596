package handler

import (
	"net/http"
	"time"

	"github.com/sivanadi/AstroCalc/internal/diag"
	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/server/middleware"
	"github.com/sivanadi/AstroCalc/internal/service"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// DiagnosticsHandler exposes the operational debugging surface: the
// enforcement toggle with its time-boxed bypass window, the diagnostic
// recorder's capture switch and self-test, and the captured decision log.
type DiagnosticsHandler struct {
	store    *store.Store
	recorder *diag.Recorder
}

func NewDiagnosticsHandler(st *store.Store, recorder *diag.Recorder) *DiagnosticsHandler {
	return &DiagnosticsHandler{store: st, recorder: recorder}
}

type diagStatusResponse struct {
	store.AccessControl
	CaptureEnabled bool `json:"capture_enabled"`
}

// Status reports the current enforcement state and whether capture is
// enabled. An already-expired bypass is reported as enforced.
// GET /admin/diagnostics/status
func (h *DiagnosticsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ac, err := h.store.LoadAccessControl(r.Context())
	if err != nil {
		writeStoreError(w, err, "access control")
		return
	}
	if ac.Expired(time.Now().UTC()) {
		ac = store.DefaultAccessControl()
	}
	writeJSON(w, http.StatusOK, diagStatusResponse{
		AccessControl:  ac,
		CaptureEnabled: h.recorder.Enabled(),
	})
}

// Toggle enables or disables credential enforcement. Disabling is always
// time-boxed and, unless global, scoped to an IP allow-list defaulting to
// the caller.
// POST /admin/diagnostics/toggle
func (h *DiagnosticsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req service.ToggleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ac, err := service.ToggleEnforcement(r.Context(), h.store, req, clientIP(r), time.Now().UTC())
	if err != nil {
		writeStoreError(w, err, "access control")
		return
	}
	writeJSON(w, http.StatusOK, ac)
}

type captureRequest struct {
	Enabled bool `json:"enabled"`
}

// Capture switches diagnostic capture on or off at runtime.
// POST /admin/diagnostics/capture
func (h *DiagnosticsHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capture_enabled": h.recorder.SetEnabled(req.Enabled),
	})
}

// Test writes a marker record through the full capture pipeline and waits for
// it to land, proving the recorder and its table are healthy.
// POST /admin/diagnostics/test
func (h *DiagnosticsHandler) Test(w http.ResponseWriter, r *http.Request) {
	if !h.recorder.Enabled() {
		writeError(w, http.StatusConflict, "capture is disabled; enable it before testing")
		return
	}

	h.recorder.Record(&model.DiagnosticRecord{
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
		Path:      "/admin/diagnostics/test",
		Outcome:   model.OutcomeAllowed,
		Reason:    model.ReasonOK,
	})
	h.recorder.Flush()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "test record written",
	})
}

// Logs returns captured records, newest first, optionally filtered by
// outcome.
// GET /admin/diagnostics/logs
func (h *DiagnosticsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	outcome := model.Outcome(queryString(r, "outcome"))
	limit := clampInt(queryInt(r, "limit", 50), 1, 500)
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	recs, total, err := h.store.ListDiagnostics(r.Context(), outcome, limit, offset)
	if err != nil {
		writeStoreError(w, err, "diagnostics")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: recs,
		Meta:     &model.ResponseMeta{Count: len(recs), Total: total},
	})
}
