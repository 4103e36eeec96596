package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// Default ceilings applied when a create request leaves limits unset.
var defaultLimits = model.RateLimits{PerMinute: 60, PerDay: 10000, PerMonth: 100000}

// KeyHandler manages API key credentials.
type KeyHandler struct {
	store *store.Store
}

func NewKeyHandler(st *store.Store) *KeyHandler {
	return &KeyHandler{store: st}
}

type createKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Pointers so that "absent" and "zero" stay distinguishable: an explicit
	// zero creates a key whose window always denies.
	PerMinute *int  `json:"requests_per_minute"`
	PerDay    *int  `json:"requests_per_day"`
	PerMonth  *int  `json:"requests_per_month"`
	IsActive  *bool `json:"is_active"`
}

func (req createKeyRequest) limits() model.RateLimits {
	l := defaultLimits
	if req.PerMinute != nil {
		l.PerMinute = *req.PerMinute
	}
	if req.PerDay != nil {
		l.PerDay = *req.PerDay
	}
	if req.PerMonth != nil {
		l.PerMonth = *req.PerMonth
	}
	return l
}

type createKeyResponse struct {
	model.APIKey
	// Key is the plaintext secret, returned exactly once at creation.
	Key string `json:"key"`
}

// Create mints a new API key. The plaintext secret appears only in this
// response; afterwards only its hash exists.
// POST /admin/api-keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	plaintext, err := store.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "key generation failed")
		return
	}

	key := &model.APIKey{
		KeyHash:     store.HashKey(plaintext),
		KeyPrefix:   store.KeyPrefix(plaintext),
		Name:        req.Name,
		Description: req.Description,
		RateLimits:  req.limits(),
		IsActive:    true,
	}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		writeStoreError(w, err, "api key")
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: *key, Key: plaintext})
}

// List returns every API key without pagination. The /admin/v1 listing is the
// paginated variant.
// GET /admin/api-keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, total, err := h.store.ListAPIKeys(r.Context(), store.ListFilter{Page: 1, PageSize: 100})
	if err != nil {
		writeStoreError(w, err, "api keys")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys), Total: total},
	})
}

type updateKeyRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PerMinute   *int    `json:"requests_per_minute"`
	PerDay      *int    `json:"requests_per_day"`
	PerMonth    *int    `json:"requests_per_month"`
	IsActive    *bool   `json:"is_active"`
}

// Update applies a partial update to one key. The secret and its hash are
// immutable; rotating means creating a new key.
// PUT /admin/api-keys/{id}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return
	}

	var req updateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, err := h.store.GetAPIKey(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "api key")
		return
	}

	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Description != nil {
		key.Description = *req.Description
	}
	if req.PerMinute != nil {
		key.PerMinute = *req.PerMinute
	}
	if req.PerDay != nil {
		key.PerDay = *req.PerDay
	}
	if req.PerMonth != nil {
		key.PerMonth = *req.PerMonth
	}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}

	if err := h.store.UpdateAPIKey(r.Context(), key); err != nil {
		writeStoreError(w, err, "api key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Delete removes one key permanently.
// DELETE /admin/api-keys/{id}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		writeStoreError(w, err, "api key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type bulkRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
	Limits *model.RateLimits `json:"limits,omitempty"`
}

// Bulk applies one action to up to 1000 keys in a single transaction.
// POST /admin/api-keys/bulk
func (h *KeyHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	bulk(w, r, h.store, model.KindAPIKey)
}

// bulk is shared between the key and domain handlers; the store dispatches on
// kind.
func bulk(w http.ResponseWriter, r *http.Request, st *store.Store, kind string) {
	var req bulkRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	var (
		affected int64
		err      error
	)
	switch req.Action {
	case "activate":
		affected, err = st.BulkSetActive(r.Context(), kind, req.IDs, true)
	case "deactivate":
		affected, err = st.BulkSetActive(r.Context(), kind, req.IDs, false)
	case "delete":
		affected, err = st.BulkDelete(r.Context(), kind, req.IDs)
	case "update_limits":
		if req.Limits == nil {
			writeError(w, http.StatusBadRequest, "limits is required for update_limits")
			return
		}
		affected, err = st.BulkUpdateLimits(r.Context(), kind, req.IDs, *req.Limits)
	default:
		writeError(w, http.StatusBadRequest, "action must be one of activate, deactivate, delete, update_limits")
		return
	}
	if err != nil {
		writeStoreError(w, err, "bulk operation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"action":   req.Action,
		"affected": affected,
	})
}

// ListV1 is the paginated, filterable, sortable listing.
// GET /admin/v1/api-keys
func (h *KeyHandler) ListV1(w http.ResponseWriter, r *http.Request) {
	filter := listFilterFromQuery(r)
	keys, total, err := h.store.ListAPIKeys(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err, "api keys")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta: &model.ResponseMeta{
			Count:    len(keys),
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		},
	})
}

// listFilterFromQuery decodes the shared listing parameters.
func listFilterFromQuery(r *http.Request) store.ListFilter {
	f := store.ListFilter{
		Page:      queryInt(r, "page", 1),
		PageSize:  queryInt(r, "page_size", 25),
		Search:    queryString(r, "search"),
		SortField: queryString(r, "sort"),
		SortOrder: queryString(r, "order"),
	}
	if v := queryString(r, "is_active"); v != "" {
		active := v == "true" || v == "1"
		f.Active = &active
	}
	if v := queryString(r, "created_from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedFrom = &ts
		}
	}
	if v := queryString(r, "created_to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedTo = &ts
		}
	}
	return f
}
