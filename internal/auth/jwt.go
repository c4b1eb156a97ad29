package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenTypeAccess tags short-lived tokens presented on every request.
	TokenTypeAccess = "access"
	// TokenTypeRefresh tags long-lived tokens exchanged for new pairs.
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims carried by internally-issued tokens. Refresh
// tokens additionally carry a random jti so individual tokens stay
// identifiable independent of the stored hash.
type TokenClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c *TokenClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid subject", ErrAuthentication)
	}
	return id, nil
}

// JWTService creates and verifies internally-issued signed tokens.
// Verification needs only the signing secret, no database or network, so it
// is safe on the per-request hot path.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) (*JWTService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: signing secret is required", ErrMisconfigured)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token TTLs must be positive", ErrMisconfigured)
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

// CreateAccessToken creates a signed access token for the user.
func (s *JWTService) CreateAccessToken(userID int64) (string, error) {
	return s.sign(userID, TokenTypeAccess, s.accessTTL, "")
}

// CreateRefreshToken creates a signed refresh token for the user with a
// random token identifier.
func (s *JWTService) CreateRefreshToken(userID int64) (string, error) {
	return s.sign(userID, TokenTypeRefresh, s.refreshTTL, uuid.NewString())
}

func (s *JWTService) sign(userID int64, tokenType string, ttl time.Duration, jti string) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// VerifyToken verifies signature, expiry, and the expected type claim. Any
// failure is reported as ErrAuthentication without detail.
func (s *JWTService) VerifyToken(tokenString, expectedType string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: wrong token type", ErrAuthentication)
	}
	return claims, nil
}
