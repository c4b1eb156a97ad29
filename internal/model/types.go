package model

import "time"

// Provider identifies the external credential source an identity came from.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderClerk  Provider = "clerk"
)

// User is the identity anchor. External bindings (google_id, clerk_id) and
// wallets accumulate on the same row over time; email is the unique anchor.
type User struct {
	ID        int64
	Email     string
	Nickname  string
	AvatarURL *string
	GoogleID  *string
	ClerkID   *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserWallet links a normalized Ethereum address to a user. Addresses are
// globally unique across all users; at most one primary wallet per user.
type UserWallet struct {
	ID        int64
	UserID    int64
	Address   string
	Kind      string
	IsPrimary bool
	CreatedAt time.Time
}

// RefreshSession is the stored pointer to an issued refresh token. Only the
// SHA-256 hash of the raw token is persisted.
type RefreshSession struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// ExternalIdentity is the normalized result of verifying a provider token.
// Fields missing from the token may be filled by a profile fetch; token
// claims take precedence over fetched profile data.
type ExternalIdentity struct {
	Provider      Provider
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Username      string
	AvatarURL     string
}

// TokenPair is the session representation handed to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
