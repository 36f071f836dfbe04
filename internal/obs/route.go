package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteOf returns the chi pattern that served r, such as
// "/api/v1/carts/{id}". chi fills the pattern while routing, so callers read
// it after the downstream handler has run. Unrouted requests report "unmatched".
func RouteOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
