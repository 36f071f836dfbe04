package auth

import (
	"cmp"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// RoleAdmin is the only role issued by this service.
const RoleAdmin = "admin"

const defaultSessionTTL = 7 * 24 * time.Hour

// ErrInvalidCredentials is returned for any username or password mismatch.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Service checks the configured admin credentials and issues session tokens.
type Service struct {
	username     string
	password     string
	passwordHash string
	tokens       tokenCodec
	now          func() time.Time
}

// Config configures the auth service. PasswordHash (argon2id) takes
// precedence over the plain Password.
type Config struct {
	Username     string
	Password     string
	PasswordHash string
	Secret       string
	SessionTTL   time.Duration
	Issuer       string
	Audience     string
	ClockSkew    time.Duration
}

// Session is a freshly issued admin token.
type Session struct {
	Admin     common.Admin
	Token     string
	ExpiresAt time.Time
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		return nil, errors.New("auth: admin username is required")
	}
	if cfg.PasswordHash == "" && cfg.Password == "" {
		return nil, errors.New("auth: admin password or password hash is required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	tokens := tokenCodec{
		key:      []byte(secret),
		issuer:   cmp.Or(strings.TrimSpace(cfg.Issuer), "coastmedia-api"),
		audience: cmp.Or(strings.TrimSpace(cfg.Audience), "coastmedia-admin"),
		skew:     max(cfg.ClockSkew, 0),
		ttl:      ttl,
	}
	return &Service{
		username:     username,
		password:     cfg.Password,
		passwordHash: strings.TrimSpace(cfg.PasswordHash),
		tokens:       tokens,
		now:          time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SessionTTL reports how long issued tokens stay valid.
func (s *Service) SessionTTL() time.Duration { return s.tokens.ttl }

// HashPassword returns an argon2id hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password is required")
	}
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(username, password string) (Session, error) {
	if err := s.verify(strings.TrimSpace(username), password); err != nil {
		return Session{}, common.NewAppError("INVALID_CREDENTIALS", "Invalid credentials", http.StatusUnauthorized, err)
	}
	admin := common.Admin{Username: s.username, Role: RoleAdmin}
	token, expiresAt, err := s.tokens.issue(admin, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Admin: admin, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	var passOK bool
	if s.passwordHash != "" {
		match, err := argon2id.ComparePasswordAndHash(password, s.passwordHash)
		if err != nil {
			return fmt.Errorf("compare password hash: %w", err)
		}
		passOK = match
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	}
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// ParseToken validates a session token and returns the admin it names.
func (s *Service) ParseToken(token string) (common.Admin, error) {
	admin, err := s.tokens.parse(strings.TrimSpace(token), s.now())
	if err != nil {
		return common.Admin{}, unauthorized(err)
	}
	if admin.Role != RoleAdmin {
		return common.Admin{}, common.NewAppError("FORBIDDEN", "admin role required", http.StatusForbidden, nil)
	}
	return admin, nil
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized, err)
}
