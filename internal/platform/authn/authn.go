// Package authn issues and verifies the bearer tokens every authenticated
// request carries, and hashes the passwords users log in with.
package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the JWT payload issued on login. TenantID is omitted (not
// zero-valued) for super-admin users, who operate outside tenant scope.
type Claims struct {
	jwt.RegisteredClaims
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
	UserID   uuid.UUID  `json:"user_id"`
	Role     string     `json:"role"`
}

// Issuer issues and parses access tokens, and produces opaque refresh
// tokens whose hash (never the token itself) is what gets persisted.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssueAccessToken mints a signed, short-lived JWT.
func (i *Issuer) IssueAccessToken(userID uuid.UUID, tenantID *uuid.UUID, role string) (string, time.Time, error) {
	expiresAt := time.Now().Add(i.accessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken validates signature and expiry and returns the claims.
func (i *Issuer) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}
	return claims, nil
}

// RefreshTokenPair is a freshly minted refresh token plus the hash that
// gets stored; only the hash is ever persisted (§6).
type RefreshTokenPair struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// NewRefreshToken generates a random opaque refresh token.
func (i *Issuer) NewRefreshToken() (RefreshTokenPair, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RefreshTokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	token := hex.EncodeToString(buf)
	return RefreshTokenPair{
		Token:     token,
		Hash:      HashRefreshToken(token),
		ExpiresAt: time.Now().Add(i.refreshTTL),
	}, nil
}

// HashRefreshToken hashes a refresh token for storage/lookup. Unlike
// passwords, refresh tokens are already high-entropy random values, so a
// fast deterministic hash (not bcrypt) is appropriate for the equality
// lookup the repository performs.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashPassword bcrypt-hashes a plaintext password at the configured cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
