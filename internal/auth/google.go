package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/bountygo/server/internal/config"
	"github.com/bountygo/server/internal/model"
)

const googleKeyFetchTimeout = 10 * time.Second

// googleIssuers are the two accepted issuer strings Google puts in ID tokens.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleVerifier validates Google-issued ID tokens against Google's
// published keys. The remote key set is cached process-wide by go-oidc and
// refreshed without blocking concurrent reads.
type GoogleVerifier struct {
	clientID string
	keySet   oidc.KeySet
}

type googleClaims struct {
	Issuer        string `json:"iss"`
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Expiry        int64  `json:"exp"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// NewGoogleVerifier creates a Google ID-token verifier. Returns
// ErrNotConfigured when no client id is set so callers can treat Google auth
// as disabled rather than broken.
func NewGoogleVerifier(cfg config.GoogleConfig, httpClient *http.Client) (*GoogleVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: google client id is not set", ErrNotConfigured)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: googleKeyFetchTimeout}
	}

	ctx := oidc.ClientContext(context.Background(), httpClient)
	return &GoogleVerifier{
		clientID: cfg.ClientID,
		keySet:   oidc.NewRemoteKeySet(ctx, cfg.JWKSURL),
	}, nil
}

// Verify checks signature, audience, issuer, and expiry, and requires a
// verified email. Fails closed with ErrAuthentication on any mismatch.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*model.ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, googleKeyFetchTimeout)
	defer cancel()

	payload, err := v.keySet.VerifySignature(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: google token signature invalid", ErrAuthentication)
	}

	var claims googleClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: google token claims unreadable", ErrAuthentication)
	}

	if claims.Audience != v.clientID {
		return nil, fmt.Errorf("%w: google token audience mismatch", ErrAuthentication)
	}
	if !googleIssuers[claims.Issuer] {
		return nil, fmt.Errorf("%w: google token issuer invalid", ErrAuthentication)
	}
	if claims.Expiry <= time.Now().Unix() {
		return nil, fmt.Errorf("%w: google token expired", ErrAuthentication)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: google token missing identity claims", ErrAuthentication)
	}
	// Unverified emails are never trusted as an identity anchor.
	if !claims.EmailVerified {
		return nil, fmt.Errorf("%w: google email not verified", ErrAuthentication)
	}

	return &model.ExternalIdentity{
		Provider:      model.ProviderGoogle,
		ExternalID:    claims.Subject,
		Email:         claims.Email,
		EmailVerified: true,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		AvatarURL:     claims.Picture,
	}, nil
}
