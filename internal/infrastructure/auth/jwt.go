// Package auth validates the bearer tokens that guard the admin console.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingRole      = errors.New("token does not carry the required role")
)

// Claims represents the admin token claims
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole checks if the claims carry a role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IssueInput contains input for token generation
type IssueInput struct {
	Subject  string
	Username string
	Roles    []string
	TTL      time.Duration
}

// TokenService signs and validates HS256 admin tokens. Tokens are minted by
// the identity provider in front of the console; Issue exists for operator
// tooling and tests.
type TokenService struct {
	secret       []byte
	issuer       string
	requiredRole string
	now          func() time.Time
}

// NewTokenService creates a new TokenService from the admin config
func NewTokenService(cfg config.AdminConfig) *TokenService {
	return &TokenService{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		requiredRole: cfg.RequiredRole,
		now:          time.Now,
	}
}

// Issue creates a signed token
func (s *TokenService) Issue(input IssueInput) (string, error) {
	now := s.now()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: input.Username,
		Roles:    input.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses a token and checks issuer, subject and the required role
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if s.requiredRole != "" && !claims.HasRole(s.requiredRole) {
		return nil, ErrMissingRole
	}
	return claims, nil
}
