package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// Handler exposes public and admin catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

// Catalog handles GET /api/v1/catalog.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.service.View(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// Addons handles GET /api/v1/catalog/addons.
func (h *Handler) Addons(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	query := AddonQuery{
		Search:  q.Get("q"),
		Service: strings.TrimSpace(q.Get("service")),
		Sort:    q.Get("sort"),
		Plan:    pricing.PlanOneTime,
	}
	if raw := q.Get("plan"); raw != "" {
		plan, ok := pricing.ParsePlan(raw)
		if !ok {
			common.WriteError(w, common.BadRequest("plan", "Invalid plan", pricing.ErrInvalidPlan))
			return
		}
		query.Plan = plan
	}
	rows, err := h.service.Addons(r.Context(), query)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// AdminListServices handles GET /api/v1/admin/services.
func (h *Handler) AdminListServices(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListServices(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// AdminCreateService handles POST /api/v1/admin/services.
func (h *Handler) AdminCreateService(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in ServiceInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateService(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// AdminUpdateService handles PUT /api/v1/admin/services/{key}.
func (h *Handler) AdminUpdateService(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in ServiceInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.UpdateService(r.Context(), chi.URLParam(r, "key"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// AdminDeleteService handles DELETE /api/v1/admin/services/{key}.
func (h *Handler) AdminDeleteService(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.service.DeleteService(r.Context(), chi.URLParam(r, "key")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListAddons handles GET /api/v1/admin/addons?service=.
func (h *Handler) AdminListAddons(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListAddons(r.Context(), strings.TrimSpace(r.URL.Query().Get("service")))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// AdminCreateAddon handles POST /api/v1/admin/addons.
func (h *Handler) AdminCreateAddon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in AddonInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateAddon(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// AdminUpdateAddon handles PUT /api/v1/admin/addons/{key}.
func (h *Handler) AdminUpdateAddon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in AddonInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.UpdateAddon(r.Context(), chi.URLParam(r, "key"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// AdminDeleteAddon handles DELETE /api/v1/admin/addons/{key}.
func (h *Handler) AdminDeleteAddon(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.service.DeleteAddon(r.Context(), chi.URLParam(r, "key")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListBundles handles GET /api/v1/admin/bundles.
func (h *Handler) AdminListBundles(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListBundles(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// AdminCreateBundle handles POST /api/v1/admin/bundles.
func (h *Handler) AdminCreateBundle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in BundleInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.CreateBundle(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// AdminUpdateBundle handles PUT /api/v1/admin/bundles/{key}.
func (h *Handler) AdminUpdateBundle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in BundleInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.UpdateBundle(r.Context(), chi.URLParam(r, "key"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// AdminDeleteBundle handles DELETE /api/v1/admin/bundles/{key}.
func (h *Handler) AdminDeleteBundle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.service.DeleteBundle(r.Context(), chi.URLParam(r, "key")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
