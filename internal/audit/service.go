package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/obs"
)

// Entry is one audited admin action.
type Entry struct {
	ID           int64           `json:"id"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Status       int             `json:"status"`
	IP           string          `json:"ip,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store defines the database operations required for auditing.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service persists audit logs for admin writes.
type Service struct {
	Store   Store
	Enabled bool
}

// Record stores an entry describing req, which finished with status. The
// actor is the authenticated admin; the resource and id come from the chi
// route ("/api/v1/admin/services/{key}" gives "admin.services" and the key).
func (s Service) Record(req *http.Request, status int) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RouteOf(req)
	actor := "anonymous"
	if admin, ok := common.AdminFrom(req.Context()); ok && admin.Username != "" {
		actor = admin.Username
	}
	if status == 0 {
		status = http.StatusOK
	}
	var meta json.RawMessage
	if q := req.URL.Query(); len(q) > 0 {
		meta, _ = json.Marshal(map[string]any{"query": q})
	}

	return s.Store.Insert(req.Context(), Entry{
		Actor:        actor,
		Action:       strings.ToUpper(req.Method) + " " + route,
		ResourceType: resourceOf(route),
		ResourceID:   resourceID(req),
		Method:       req.Method,
		Path:         req.URL.Path,
		Status:       status,
		IP:           common.ClientIP(req),
		UserAgent:    strings.TrimSpace(req.UserAgent()),
		RequestID:    middleware.GetReqID(req.Context()),
		Metadata:     meta,
	})
}

// resourceID is the last URL parameter of the matched route.
func resourceID(req *http.Request) string {
	rc := chi.RouteContext(req.Context())
	if rc == nil || len(rc.URLParams.Values) == 0 {
		return ""
	}
	return strings.TrimSpace(rc.URLParams.Values[len(rc.URLParams.Values)-1])
}

func resourceOf(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}
