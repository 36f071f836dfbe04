package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Reader is the read side used by the admin API.
type Reader interface {
	List(ctx context.Context, limit int) ([]Order, error)
	Get(ctx context.Context, id string) (Order, error)
	ListCustomers(ctx context.Context, limit int) ([]Customer, error)
}

// AdminHandler provides administrative order endpoints.
type AdminHandler struct {
	Store Reader
}

// List handles GET /api/v1/admin/orders.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	rows, err := h.Store.List(r.Context(), common.LimitParam(r, 50, 200))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Get handles GET /api/v1/admin/orders/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	o, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Customers handles GET /api/v1/admin/customers.
func (h *AdminHandler) Customers(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	rows, err := h.Store.ListCustomers(r.Context(), common.LimitParam(r, 200, 200))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list customers", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
