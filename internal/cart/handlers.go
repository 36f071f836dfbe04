package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return false
	}
	return true
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	c, err := h.Svc.Create(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Toggle handles POST /api/v1/carts/{id}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload struct {
		Kind string `json:"kind"`
		Key  string `json:"key"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(payload.Kind)))
	c, err := h.Svc.Toggle(r.Context(), chi.URLParam(r, "id"), kind, strings.TrimSpace(payload.Key))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// SetPlan handles PUT /api/v1/carts/{id}/plan.
func (h *Handler) SetPlan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload struct {
		Plan string `json:"plan"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.SetPlan(r.Context(), chi.URLParam(r, "id"), payload.Plan)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// SetContact handles PUT /api/v1/carts/{id}/contact.
func (h *Handler) SetContact(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var contact pricing.Contact
	if err := common.DecodeJSON(r, &contact); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.SetContact(r.Context(), chi.URLParam(r, "id"), contact)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Clear handles DELETE /api/v1/carts/{id}/items.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	c, err := h.Svc.Clear(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Quote handles GET /api/v1/carts/{id}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}
