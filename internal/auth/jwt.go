package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/conduit/pkg/models"
)

// Token errors.
var (
	// ErrAuthDisabled indicates no signing secret is configured.
	ErrAuthDisabled = errors.New("auth disabled: no secret configured")

	// ErrInvalidToken indicates the token failed parsing or verification.
	ErrInvalidToken = errors.New("invalid token")
)

// JWTService resolves tenant identity from signed bearer tokens. The tenant
// id travels in the standard subject claim.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper with the given secret and expiry.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

type tenantClaims struct {
	jwt.RegisteredClaims
}

// Generate issues a signed token for the given tenant.
func (s *JWTService) Generate(tenant models.TenantID) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(tenant.String()) == "" {
		return "", errors.New("tenant id required")
	}

	claims := tenantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenant.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
		},
	}
	if s.expiry <= 0 {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ResolveTenant parses and validates a token and returns the normalized
// tenant id embedded in it.
func (s *JWTService) ResolveTenant(token string) (models.TenantID, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &tenantClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*tenantClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return models.NormalizeTenantID(claims.Subject), nil
}
