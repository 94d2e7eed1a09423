package fakeapi

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errTokenRevoked = errors.New("token revoked")

// Claims carries the identity fields the ledger API puts in its tokens.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	Epoch    uint64 `json:"epoch"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens. Bumping the epoch revokes
// every token issued before.
type Issuer struct {
	key   []byte
	ttl   time.Duration
	epoch atomic.Uint64
	now   func() time.Time
}

func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue mints a token for u.
func (i *Issuer) Issue(u User) (string, error) {
	now := i.now()
	claims := Claims{
		Role:     u.Role,
		Username: u.Username,
		Epoch:    i.epoch.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Verify checks signature, expiry and epoch.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Epoch != i.epoch.Load() {
		return nil, errTokenRevoked
	}
	return claims, nil
}

// RevokeAll invalidates every token issued so far.
func (i *Issuer) RevokeAll() {
	i.epoch.Add(1)
}
