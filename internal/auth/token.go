package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

const roleClaim = "role"

var errNoToken = errors.New("auth: token missing")

// tokenCodec signs and checks HS256 admin session tokens. Parsing pins the
// algorithm to HS256, so tokens signed with anything else, including "none",
// are refused.
type tokenCodec struct {
	key      []byte
	issuer   string
	audience string
	skew     time.Duration
	ttl      time.Duration
}

func (c tokenCodec) issue(admin common.Admin, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.ttl)
	tok, err := jwt.NewBuilder().
		Subject(admin.Username).
		Issuer(c.issuer).
		Audience([]string{c.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-c.skew)).
		Expiration(exp).
		Claim(roleClaim, admin.Role).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), exp, nil
}

func (c tokenCodec) parse(raw string, now time.Time) (common.Admin, error) {
	if raw == "" {
		return common.Admin{}, errNoToken
	}
	tok, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256, c.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(c.skew),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return common.Admin{}, err
	}
	role, _ := tok.PrivateClaims()[roleClaim].(string)
	return common.Admin{Username: tok.Subject(), Role: role}, nil
}
