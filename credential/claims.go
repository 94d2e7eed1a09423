package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when the credential cannot be decoded as a JWT.
var ErrNotJWT = errors.New("credential is not a jwt")

// Claims is the subset of token claims the client cares about.
type Claims struct {
	Subject   string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrNotJWT
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	var out Claims
	if sub, err := mc.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	out.Username = stringClaim(mc, "username")
	out.Role = stringClaim(mc, "role")

	return out, nil
}

// Expired reports whether the token carries an exp claim that is at or before
// now minus leeway. Tokens without exp never expire locally.
func (c Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(-leeway).Before(c.ExpiresAt)
}

func stringClaim(mc jwt.MapClaims, name string) string {
	v, ok := mc[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
