package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims consumed by the server. Subject is the user id.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager verifies (and, for tooling, issues) HS256 bearer tokens.
//
// Login and token issuance for end users live outside this server; the manager
// only needs to agree with the issuer on the shared secret.
type JWTManager struct {
	secret []byte
	issuer string
}

// NewJWTManager creates a manager for the given master secret.
func NewJWTManager(masterSecret string) (*JWTManager, error) {
	if len(masterSecret) < 8 {
		return nil, fmt.Errorf("master secret must be at least 8 characters")
	}
	return &JWTManager{secret: []byte(masterSecret), issuer: "dextop"}, nil
}

// CreateToken signs a token for userID that expires after ttl. A zero ttl
// produces a non-expiring token.
func (m *JWTManager) CreateToken(userID, username string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   m.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns its claims.
func (m *JWTManager) VerifyToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
