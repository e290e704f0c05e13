// Package jwtmw は読み取りAPI用のサービストークンの発行と検証を行います。
package jwtmw

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnvKeyJWTSecret はトークンの署名鍵を持つ環境変数名です。
const EnvKeyJWTSecret = "JWT_SECRET"

// ScopeRead は読み取りAPIへのアクセスを許可するスコープです。
const ScopeRead = "candles:read"

// ErrEmptySecret は署名鍵が空であることを表します。
var ErrEmptySecret = errors.New("jwt secret is empty")

// Generator defines the interface for JWT token generation.
type Generator interface {
	// GenerateToken は subject（クライアント名）向けに scope 付きのトークンを発行します。
	GenerateToken(subject, scope string) (string, error)
}

var _ Generator = (*generator)(nil)

type generator struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewGenerator creates a new JWT generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration) (*generator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &generator{secret: []byte(secret), expiration: expiration, now: time.Now}, nil
}

// GenerateToken creates a signed HS256 token with standard claims.
func (g *generator) GenerateToken(subject, scope string) (string, error) {
	now := g.now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(g.expiration).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
