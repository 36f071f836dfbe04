package audit

import (
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Handler serves the audit trail to admins.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/admin/audit-logs?limit=&offset=.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "audit store not configured", nil)
		return
	}
	limit := common.LimitParam(r, 50, 200)
	offset := max(common.QueryInt(r, "offset", 0), 0)
	entries, err := h.Store.List(r.Context(), limit, offset)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
