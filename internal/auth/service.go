package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bountygo/server/internal/model"
	"github.com/bountygo/server/internal/repo"
)

// WalletChallenge is the response to a wallet nonce request. The message is
// what the client signs; the nonce inside it is single-use.
type WalletChallenge struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in"`
}

// AuthService orchestrates credential verification, identity resolution, and
// the session/token lifecycle. A failure at any stage short-circuits; no
// partial side effects are visible except that a consumed wallet nonce stays
// consumed (replay prevention deliberately survives a failed later step).
type AuthService struct {
	jwtService *JWTService
	resolver   *IdentityResolver
	users      repo.UserRepo
	refresh    repo.RefreshRepo
	nonces     NonceStore
	nonceTTL   time.Duration

	google *GoogleVerifier
	clerk  *ClerkVerifier
}

// NewAuthService creates a new auth service. The provider verifiers may be
// nil when the deployment has them disabled; the matching authenticate
// operations then fail with ErrNotConfigured.
func NewAuthService(
	jwtService *JWTService,
	resolver *IdentityResolver,
	users repo.UserRepo,
	refresh repo.RefreshRepo,
	nonces NonceStore,
	nonceTTL time.Duration,
	google *GoogleVerifier,
	clerk *ClerkVerifier,
) *AuthService {
	if nonceTTL <= 0 {
		nonceTTL = DefaultNonceTTL
	}
	return &AuthService{
		jwtService: jwtService,
		resolver:   resolver,
		users:      users,
		refresh:    refresh,
		nonces:     nonces,
		nonceTTL:   nonceTTL,
		google:     google,
		clerk:      clerk,
	}
}

// AuthenticateGoogle verifies a Google ID token, resolves the identity, and
// mints a token pair.
func (s *AuthService) AuthenticateGoogle(ctx context.Context, idToken string) (model.TokenPair, model.User, error) {
	if s.google == nil {
		return model.TokenPair{}, model.User{}, fmt.Errorf("%w: google auth disabled", ErrNotConfigured)
	}

	ident, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	user, err := s.resolver.ResolveOrCreate(ctx, *ident)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	pair, err := s.createTokenPair(ctx, user.ID)
	return pair, user, err
}

// AuthenticateClerk verifies a federated token (strict path with bounded
// fallback), resolves the identity, and mints a token pair.
func (s *AuthService) AuthenticateClerk(ctx context.Context, token string) (model.TokenPair, model.User, error) {
	if s.clerk == nil {
		return model.TokenPair{}, model.User{}, fmt.Errorf("%w: clerk auth disabled", ErrNotConfigured)
	}

	claims, err := s.clerk.VerifyWithFallback(ctx, token)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	ident, err := s.clerk.Identity(ctx, claims)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	user, err := s.resolver.ResolveOrCreate(ctx, *ident)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	pair, err := s.createTokenPair(ctx, user.ID)
	return pair, user, err
}

// WalletChallenge issues a single-use nonce and the exact message the
// wallet must sign.
func (s *AuthService) WalletChallenge(ctx context.Context, address string) (WalletChallenge, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return WalletChallenge{}, err
	}

	nonce, err := s.nonces.Issue(ctx, addr)
	if err != nil {
		return WalletChallenge{}, err
	}

	return WalletChallenge{
		Nonce:     nonce,
		Message:   AuthMessage(addr, nonce, time.Now()),
		ExpiresIn: int64(s.nonceTTL.Seconds()),
	}, nil
}

// AuthenticateWallet verifies a wallet signature over a previously issued
// challenge and mints a token pair for the user already bound to the
// address. There is no implicit account creation for wallets.
func (s *AuthService) AuthenticateWallet(ctx context.Context, address, signature, message string) (model.TokenPair, model.User, error) {
	addr, err := s.consumeWalletProof(ctx, address, signature, message)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	user, err := s.users.FindActiveByWalletAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TokenPair{}, model.User{}, fmt.Errorf("%w: wallet not linked to any account", ErrAuthentication)
		}
		return model.TokenPair{}, model.User{}, err
	}

	pair, err := s.createTokenPair(ctx, user.ID)
	return pair, user, err
}

// LinkWallet verifies a wallet signature the same way as a login and binds
// the address to an existing user.
func (s *AuthService) LinkWallet(ctx context.Context, userID int64, address, signature, message string, isPrimary bool) (model.UserWallet, error) {
	addr, err := s.consumeWalletProof(ctx, address, signature, message)
	if err != nil {
		return model.UserWallet{}, err
	}
	return s.resolver.LinkWallet(ctx, userID, addr, isPrimary)
}

// UnlinkWallet removes a wallet binding owned by the user.
func (s *AuthService) UnlinkWallet(ctx context.Context, userID, walletID int64) (bool, error) {
	return s.resolver.UnlinkWallet(ctx, userID, walletID)
}

// Wallets lists the user's wallet bindings.
func (s *AuthService) Wallets(ctx context.Context, userID int64) ([]model.UserWallet, error) {
	return s.resolver.Wallets(ctx, userID)
}

// consumeWalletProof runs the shared challenge check: extract the nonce from
// the signed message, burn it, then verify the signature. The nonce is
// consumed before signature verification, so a failed signature still
// invalidates the challenge.
func (s *AuthService) consumeWalletProof(ctx context.Context, address, signature, message string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}

	nonce := ExtractNonce(message)
	if nonce == "" {
		return "", fmt.Errorf("%w: invalid authentication message format", ErrAuthentication)
	}

	ok, err := s.nonces.Consume(ctx, addr, nonce)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: invalid or expired nonce", ErrAuthentication)
	}

	ok, err = VerifySignature(addr, signature, message)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: invalid wallet signature", ErrAuthentication)
	}
	return addr, nil
}

// Refresh exchanges a valid refresh token for a brand-new pair. The codec
// and the store must both agree the token is valid; the presented token is
// revoked atomically as part of rotation, so it cannot be redeemed twice.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (model.TokenPair, error) {
	claims, err := s.jwtService.VerifyToken(rawToken, TokenTypeRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return model.TokenPair{}, err
	}

	session, err := s.refresh.ConsumeByHash(ctx, HashRefreshToken(rawToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TokenPair{}, fmt.Errorf("%w: refresh token not recognized", ErrAuthentication)
		}
		return model.TokenPair{}, err
	}
	if session.UserID != userID {
		return model.TokenPair{}, fmt.Errorf("%w: refresh token subject mismatch", ErrAuthentication)
	}

	// Deactivated users fail refresh even with an unexpired token.
	user, err := s.users.GetActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TokenPair{}, fmt.Errorf("%w: user not found or inactive", ErrAuthentication)
		}
		return model.TokenPair{}, err
	}

	return s.createTokenPair(ctx, user.ID)
}

// Logout revokes one refresh token when given, or every token for the user
// otherwise. Idempotent: revoking an already-revoked token reports false.
func (s *AuthService) Logout(ctx context.Context, userID int64, rawToken string) (bool, error) {
	if rawToken == "" {
		return s.LogoutAll(ctx, userID)
	}
	return s.refresh.RevokeByHash(ctx, HashRefreshToken(rawToken))
}

// LogoutAll revokes every live refresh token for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (bool, error) {
	n, err := s.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ValidateSession verifies an access token and loads its active user. This
// is the inbound-request authentication check; the token itself is checked
// without any database access, the user load enforces the active flag.
func (s *AuthService) ValidateSession(ctx context.Context, accessToken string) (model.User, error) {
	claims, err := s.jwtService.VerifyToken(accessToken, TokenTypeAccess)
	if err != nil {
		return model.User{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return model.User{}, err
	}

	user, err := s.users.GetActiveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: user not found or inactive", ErrAuthentication)
		}
		return model.User{}, err
	}
	return user, nil
}

// CleanupExpired deletes refresh sessions past expiry. Maintenance sweep;
// correctness never depends on it running.
func (s *AuthService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.refresh.DeleteExpired(ctx)
}

// createTokenPair mints an access/refresh pair and persists the refresh
// token hash.
func (s *AuthService) createTokenPair(ctx context.Context, userID int64) (model.TokenPair, error) {
	accessToken, err := s.jwtService.CreateAccessToken(userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := s.jwtService.CreateRefreshToken(userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	expiresAt := time.Now().Add(s.jwtService.RefreshTTL())
	if _, err := s.refresh.Create(ctx, userID, HashRefreshToken(refreshToken), expiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.jwtService.AccessTTL().Seconds()),
	}, nil
}
