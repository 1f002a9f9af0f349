// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package retrieve

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBadToken is returned for missing, malformed, expired, or
// wrong-share download tokens.
var ErrBadToken = errors.New("invalid download token")

// TokenSigner mints and verifies short-lived download tokens. A token is
// a capability for one share: it names the code it was minted for and
// expires on its own clock, independent of the share's expiry.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner creates a signer with the given HMAC secret and token
// lifetime.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl}
}

// Sign mints a token authorizing download of the share behind code.
func (s *TokenSigner) Sign(code string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   code,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return signed, nil
}

// Verify checks that tokenString is valid and was minted for code.
func (s *TokenSigner) Verify(tokenString, code string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		})
	if err != nil || !token.Valid {
		return ErrBadToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != code {
		return ErrBadToken
	}
	return nil
}
