package audit

import (
	"net/http"

	"github.com/felixge/httpsnoop"
)

// Recorder audits admin writes once they have been handled.
type Recorder struct {
	Service *Service
	OnError func(error)
}

// Writes records every non-read request that completes with a 2xx status.
// Reads and failed writes pass through untouched.
func (r Recorder) Writes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, req)
			return
		}
		if r.Service == nil || !r.Service.Enabled {
			next.ServeHTTP(w, req)
			return
		}
		m := httpsnoop.CaptureMetrics(next, w, req)
		if m.Code < 200 || m.Code >= 300 {
			return
		}
		if err := r.Service.Record(req, m.Code); err != nil && r.OnError != nil {
			r.OnError(err)
		}
	})
}
