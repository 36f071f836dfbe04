package checkout

import (
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
	// PublicBaseURL is the origin fallback when the request has no Origin header.
	PublicBaseURL string
}

// Checkout handles POST /api/v1/checkout. The success body is
// {url, sessionId, orderId} without a data wrapper.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.Origin = common.Origin(r, h.PublicBaseURL)
	out, err := h.Svc.Checkout(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}
