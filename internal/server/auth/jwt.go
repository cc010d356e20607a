// Package auth issues and verifies the short-lived access tokens (HS256 JWTs)
// that accompany every authenticated request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies access tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now for both signing and validation.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret []byte, ttl time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	return i
}

// TTL is the lifetime given to new tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// GenerateToken returns a signed token whose subject is accountID, together
// with its expiry.
func (i *Issuer) GenerateToken(accountID string) (string, time.Time, error) {
	issued := i.now()
	expires := issued.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing access token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies tokenString and returns its subject. Failures are
// either common.ErrAccessTokenExpired or common.ErrInvalidAccessToken.
func (i *Issuer) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := i.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrAccessTokenExpired
		}
		return "", common.ErrInvalidAccessToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidAccessToken
	}

	return claims.Subject, nil
}
