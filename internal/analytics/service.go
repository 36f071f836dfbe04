package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Metrics is the admin dashboard summary. Revenue and orders count paid
// orders only.
type Metrics struct {
	RevenueCents int64 `json:"revenue_cents"`
	Orders       int64 `json:"orders"`
	Customers    int64 `json:"customers"`
	Pageviews    int64 `json:"pageviews"`
}

// PageCount is the number of recorded pageviews for one path.
type PageCount struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

// Service serves dashboard aggregates through a short Redis cache.
type Service struct {
	Store Store
	R     *redis.Client
	TTL   time.Duration
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Metrics returns the dashboard summary.
func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	if s == nil || s.Store == nil {
		return Metrics{}, errors.New("analytics service not configured")
	}
	var m Metrics
	if s.load(ctx, "an:metrics", &m) {
		return m, nil
	}
	m, err := s.Store.Metrics(ctx)
	if err != nil {
		return Metrics{}, err
	}
	s.save(ctx, "an:metrics", m)
	return m, nil
}

// TopPages returns the most viewed paths over the last days.
func (s *Service) TopPages(ctx context.Context, days, limit int) ([]PageCount, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("analytics service not configured")
	}
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("an:pages:%d:%d", days, limit)
	var pages []PageCount
	if s.load(ctx, key, &pages) {
		return pages, nil
	}
	pages, err := s.Store.TopPages(ctx, s.now().AddDate(0, 0, -days), limit)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, pages)
	return pages, nil
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) save(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
