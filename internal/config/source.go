package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// source reads typed settings from the process environment. Blank variables
// count as unset. Malformed values are collected instead of silently replaced
// by their defaults.
type source struct {
	k    *koanf.Koanf
	errs []error
}

func newSource() (*source, error) {
	_ = godotenv.Load()
	k := koanf.New(".")
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, strings.TrimSpace(value)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return &source{k: k}, nil
}

func (s *source) invalid(key, value, kind string) {
	s.errs = append(s.errs, fmt.Errorf("%s: %q is not a valid %s", key, value, kind))
}

func (s *source) err() error { return errors.Join(s.errs...) }

func (s *source) str(key, def string) string {
	if !s.k.Exists(key) {
		return def
	}
	return s.k.String(key)
}

func (s *source) list(key string) []string {
	var out []string
	for part := range strings.SplitSeq(s.str(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *source) duration(key string, def time.Duration) time.Duration {
	if !s.k.Exists(key) {
		return def
	}
	raw := s.k.String(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		s.invalid(key, raw, "duration")
		return def
	}
	return d
}

func (s *source) integer(key string, def int) int {
	if !s.k.Exists(key) {
		return def
	}
	raw := s.k.String(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.invalid(key, raw, "integer")
		return def
	}
	return n
}

func (s *source) millis(key string, def time.Duration) time.Duration {
	ms := s.integer(key, int(def.Milliseconds()))
	if ms < 0 {
		s.invalid(key, strconv.Itoa(ms), "millisecond count")
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *source) float(key string, def float64) float64 {
	if !s.k.Exists(key) {
		return def
	}
	raw := s.k.String(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.invalid(key, raw, "number")
		return def
	}
	return f
}

func (s *source) ratio(key string, def float64) float64 {
	if !s.k.Exists(key) {
		return def
	}
	raw := s.k.String(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 || f > 1 {
		s.invalid(key, raw, "ratio in (0,1]")
		return def
	}
	return f
}

func (s *source) boolean(key string, def bool) bool {
	if !s.k.Exists(key) {
		return def
	}
	raw := s.k.String(key)
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	s.invalid(key, raw, "boolean")
	return def
}

func (s *source) sameSite(key string) http.SameSite {
	raw := s.str(key, "lax")
	switch strings.ToLower(raw) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	}
	s.invalid(key, raw, "SameSite mode")
	return http.SameSiteLaxMode
}
