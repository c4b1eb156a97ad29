package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(testSecret, 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestJWTService_accessRoundTrip(t *testing.T) {
	svc := newTestJWTService(t)

	token, err := svc.CreateAccessToken(42)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token, TokenTypeAccess)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestJWTService_typeIsolation(t *testing.T) {
	svc := newTestJWTService(t)

	access, err := svc.CreateAccessToken(1)
	require.NoError(t, err)
	refresh, err := svc.CreateRefreshToken(1)
	require.NoError(t, err)

	_, err = svc.VerifyToken(access, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrAuthentication, "access token must not pass as refresh")

	_, err = svc.VerifyToken(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrAuthentication, "refresh token must not pass as access")
}

func TestJWTService_refreshTokensUnique(t *testing.T) {
	svc := newTestJWTService(t)

	t1, err := svc.CreateRefreshToken(1)
	require.NoError(t, err)
	t2, err := svc.CreateRefreshToken(1)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "refresh tokens carry a random jti")
}

func TestJWTService_expiredToken(t *testing.T) {
	svc, err := NewJWTService(testSecret, time.Nanosecond, time.Nanosecond)
	require.NoError(t, err)

	token, err := svc.CreateAccessToken(1)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.VerifyToken(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestJWTService_tamperedToken(t *testing.T) {
	svc := newTestJWTService(t)

	token, err := svc.CreateAccessToken(1)
	require.NoError(t, err)

	other, err := NewJWTService("another-secret-that-is-also-32-chars!!", 15*time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = other.VerifyToken(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrAuthentication, "token signed with a different secret must fail")

	_, err = svc.VerifyToken(token+"x", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrAuthentication, "mangled token must fail")

	_, err = svc.VerifyToken("not-a-jwt", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestNewJWTService_misconfigured(t *testing.T) {
	_, err := NewJWTService("", time.Minute, time.Hour)
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("empty secret: expected ErrMisconfigured, got %v", err)
	}

	_, err = NewJWTService(testSecret, 0, time.Hour)
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("zero access TTL: expected ErrMisconfigured, got %v", err)
	}

	_, err = NewJWTService(testSecret, time.Minute, -time.Hour)
	if !errors.Is(err, ErrMisconfigured) {
		t.Errorf("negative refresh TTL: expected ErrMisconfigured, got %v", err)
	}
}
