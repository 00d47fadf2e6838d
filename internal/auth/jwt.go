// Package auth issues and validates bearer tokens for the control API.
//
// Tokens are HS256 JWTs signed with a server-side secret. They carry the
// caller in the subject claim and a scope deciding which routes it may use:
// "read" for inspection, "admin" for changing entries and forcing refreshes.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes granted by tokens.
const (
	ScopeRead  = "read"
	ScopeAdmin = "admin"
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token has expired")
	ErrUnknownScope = errors.New("unknown scope")
	ErrMissingKey   = errors.New("signing key is required")
)

// Claims are the claims of an API token.
type Claims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope"`
}

// Allows reports whether the token grants scope. Admin implies read.
func (c *Claims) Allows(scope string) bool {
	return c.Scope == scope || c.Scope == ScopeAdmin
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string
	// Issuer is the issuer claim (default: "tohome").
	Issuer string
	// Audience is the audience claim (default: "tohome-api").
	Audience string
	// Now defaults to time.Now.
	Now func() time.Time
}

// JWTService issues and validates tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "tohome"
	}
	if cfg.Audience == "" {
		cfg.Audience = "tohome-api"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        cfg.Now,
	}, nil
}

// GenerateToken issues a token for subject with the given scope.
func (s *JWTService) GenerateToken(subject, scope string, ttl time.Duration) (string, time.Time, error) {
	if !slices.Contains([]string{ScopeRead, ScopeAdmin}, scope) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
