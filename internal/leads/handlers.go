package leads

import (
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Handler exposes the public forms and the admin lead list.
type Handler struct {
	Svc *Service
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "leads service not configured", nil)
		return false
	}
	return true
}

// Submit handles POST /api/v1/forms/lead.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	if _, err := h.Svc.Submit(r.Context(), in); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Pageview handles POST /api/v1/events/pageview.
func (h *Handler) Pageview(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var pv Pageview
	if err := common.DecodeJSON(r, &pv); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.RecordPageview(r.Context(), pv, r.UserAgent()); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminList handles GET /api/v1/admin/leads.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.Svc.List(r.Context(), common.LimitParam(r, 200, 200))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
