package analytics

import (
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Handler exposes the admin dashboard endpoints.
type Handler struct {
	Svc *Service
}

// Metrics handles GET /api/v1/admin/metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "analytics service not configured", nil)
		return
	}
	m, err := h.Svc.Metrics(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": m})
}

// TopPages handles GET /api/v1/admin/metrics/pages?days=&limit=.
func (h *Handler) TopPages(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "analytics service not configured", nil)
		return
	}
	days := common.QueryInt(r, "days", 7)
	if days < 1 || days > 90 {
		common.WriteError(w, common.BadRequest("days", "days must be between 1 and 90", nil))
		return
	}
	pages, err := h.Svc.TopPages(r.Context(), days, common.LimitParam(r, 10, 50))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pages})
}
