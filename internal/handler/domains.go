package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// DomainHandler manages authorized domain credentials.
type DomainHandler struct {
	store *store.Store
}

func NewDomainHandler(st *store.Store) *DomainHandler {
	return &DomainHandler{store: st}
}

type createDomainRequest struct {
	Domain    string `json:"domain"`
	PerMinute *int   `json:"requests_per_minute"`
	PerDay    *int   `json:"requests_per_day"`
	PerMonth  *int   `json:"requests_per_month"`
	IsActive  *bool  `json:"is_active"`
}

// Create registers a domain pattern. The pattern authorizes the exact host
// and every subdomain beneath it.
// POST /admin/domains
func (h *DomainHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDomainRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	limits := defaultLimits
	if req.PerMinute != nil {
		limits.PerMinute = *req.PerMinute
	}
	if req.PerDay != nil {
		limits.PerDay = *req.PerDay
	}
	if req.PerMonth != nil {
		limits.PerMonth = *req.PerMonth
	}

	d := &model.Domain{
		Domain:     req.Domain,
		RateLimits: limits,
		IsActive:   true,
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := h.store.CreateDomain(r.Context(), d); err != nil {
		writeStoreError(w, err, "domain")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// List returns every domain without pagination.
// GET /admin/domains
func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	domains, total, err := h.store.ListDomains(r.Context(), store.ListFilter{Page: 1, PageSize: 100})
	if err != nil {
		writeStoreError(w, err, "domains")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: domains,
		Meta:     &model.ResponseMeta{Count: len(domains), Total: total},
	})
}

type updateDomainRequest struct {
	Domain    *string `json:"domain"`
	PerMinute *int    `json:"requests_per_minute"`
	PerDay    *int    `json:"requests_per_day"`
	PerMonth  *int    `json:"requests_per_month"`
	IsActive  *bool   `json:"is_active"`
}

// Update applies a partial update to one domain.
// PUT /admin/domains/{id}
func (h *DomainHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return
	}

	var req updateDomainRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	d, err := h.store.GetDomain(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "domain")
		return
	}

	if req.Domain != nil {
		d.Domain = *req.Domain
	}
	if req.PerMinute != nil {
		d.PerMinute = *req.PerMinute
	}
	if req.PerDay != nil {
		d.PerDay = *req.PerDay
	}
	if req.PerMonth != nil {
		d.PerMonth = *req.PerMonth
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := h.store.UpdateDomain(r.Context(), d); err != nil {
		writeStoreError(w, err, "domain")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Delete removes one domain permanently.
// DELETE /admin/domains/{id}
func (h *DomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.store.DeleteDomain(r.Context(), id); err != nil {
		writeStoreError(w, err, "domain")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Bulk applies one action to up to 1000 domains in a single transaction.
// POST /admin/domains/bulk
func (h *DomainHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	bulk(w, r, h.store, model.KindDomain)
}

// ListV1 is the paginated, filterable, sortable listing.
// GET /admin/v1/domains
func (h *DomainHandler) ListV1(w http.ResponseWriter, r *http.Request) {
	filter := listFilterFromQuery(r)
	domains, total, err := h.store.ListDomains(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err, "domains")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: domains,
		Meta: &model.ResponseMeta{
			Count:    len(domains),
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		},
	})
}
