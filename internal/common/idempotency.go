package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	redis "github.com/redis/go-redis/v9"
)

const (
	idemPending      = "pending"
	idemMaxBodyBytes = 256 << 10
)

// Idem implements Idempotency-Key handling backed by Redis. The first request
// for a key runs and its response is stored; repeats with the same body get
// the stored response back. A repeat while the first is still running gets
// 409, and reusing a key with a different body gets 422.
type Idem struct {
	R   redis.Cmdable
	TTL time.Duration
}

type idemRecord struct {
	Fingerprint string `json:"fp"`
	Status      int    `json:"status"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Middleware applies the idempotency rules. Requests without the header pass
// through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			WriteError(w, BadRequest("body", "unable to read request body", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := "idem:" + Fingerprint(r.Method, r.URL.Path, header)
		fp := Fingerprint(string(body))

		ok, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			i.replay(ctx, w, key, fp)
			return
		}

		var buf bytes.Buffer
		overflow := false
		status := http.StatusOK
		ww := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					status = code
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					if overflow || buf.Len()+len(b) > idemMaxBodyBytes {
						overflow = true
						buf.Reset()
					} else {
						buf.Write(b)
					}
					return next(b)
				}
			},
		})
		next.ServeHTTP(ww, r)

		store := context.WithoutCancel(ctx)
		if status >= http.StatusInternalServerError || overflow {
			_ = i.R.Del(store, key).Err()
			return
		}
		rec, err := json.Marshal(idemRecord{
			Fingerprint: fp,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        buf.Bytes(),
		})
		if err != nil {
			_ = i.R.Del(store, key).Err()
			return
		}
		_ = i.R.Set(store, key, rec, ttl).Err()
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, fp string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "request expired, retry with the same key", nil)
		return
	case err != nil:
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	case string(raw) == idemPending:
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this key is still in progress", nil)
		return
	}
	var rec idemRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	}
	if rec.Fingerprint != fp {
		JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "key was used with a different request body", nil)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
