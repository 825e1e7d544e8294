package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/showroom/internal/chat"
)

// Claims is the bearer token payload the reference server accepts.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Plan  string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the chat identity the claims describe.
func (c Claims) Identity() chat.Identity {
	return chat.Identity{Email: c.Email, Name: c.Name, Role: c.Role, Plan: c.Plan}
}

// MintToken signs an HS256 token for id. A zero ttl never expires.
func MintToken(secret []byte, id chat.Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("mint token: empty secret")
	}
	now := time.Now().UTC()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Role:  id.Role,
		Plan:  id.Plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.Email,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyToken parses and validates a token minted with secret.
func VerifyToken(secret []byte, token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", err)
	}
	if claims.Email == "" {
		return Claims{}, errors.New("verify token: no email claim")
	}
	return claims, nil
}

// fileClaims authorize reading one uploaded object until they expire.
type fileClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

func signFile(secret []byte, key string, ttl time.Duration, now time.Time) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, fileClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString(secret)
}

func verifyFile(secret []byte, token string) (string, error) {
	var claims fileClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		return "", err
	}
	return claims.Key, nil
}
