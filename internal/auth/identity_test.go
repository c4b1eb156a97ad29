package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bountygo/server/internal/model"
)

func newTestResolver() (*IdentityResolver, *fakeUserRepo, *fakeWalletRepo) {
	wallets := newFakeWalletRepo()
	users := newFakeUserRepo(wallets)
	return NewIdentityResolver(users, wallets), users, wallets
}

func googleIdentity(sub, email string) model.ExternalIdentity {
	return model.ExternalIdentity{
		Provider:      model.ProviderGoogle,
		ExternalID:    sub,
		Email:         email,
		EmailVerified: true,
		Name:          "Ada Lovelace",
		AvatarURL:     "https://example.com/ada.png",
	}
}

func TestResolveOrCreate_createsNewUser(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	user, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada Lovelace", user.Nickname)
	assert.True(t, user.IsActive)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "g-1", *user.GoogleID)
}

func TestResolveOrCreate_idempotent(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	first, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)
	second, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same external identity must map to one user")
}

func TestResolveOrCreate_linksByEmail(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	existing, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)

	// Same email arriving through a different provider attaches to the
	// existing account instead of creating a second one.
	clerk := model.ExternalIdentity{
		Provider:   model.ProviderClerk,
		ExternalID: "user_abc",
		Email:      "ada@example.com",
	}
	linked, err := resolver.ResolveOrCreate(ctx, clerk)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, linked.ID)
	require.NotNil(t, linked.ClerkID)
	assert.Equal(t, "user_abc", *linked.ClerkID)
	require.NotNil(t, linked.GoogleID)
	assert.Equal(t, "g-1", *linked.GoogleID, "original provider link must survive")
}

func TestResolveOrCreate_externalIDWinsOverEmail(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	original, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)
	_, err = resolver.ResolveOrCreate(ctx, googleIdentity("g-2", "other@example.com"))
	require.NoError(t, err)

	// g-1 comes back with a changed upstream email. It must resolve to the
	// original account by external id, not collide with the other account.
	moved, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "ada-new@example.com"))
	require.NoError(t, err)
	assert.Equal(t, original.ID, moved.ID)
	assert.Equal(t, "ada-new@example.com", moved.Email, "drifted email is reconciled")
}

func TestResolveOrCreate_missingAnchors(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	_, err := resolver.ResolveOrCreate(ctx, model.ExternalIdentity{Provider: model.ProviderGoogle, Email: "a@b.c"})
	assert.ErrorIs(t, err, ErrAuthentication, "missing external id")

	_, err = resolver.ResolveOrCreate(ctx, model.ExternalIdentity{Provider: model.ProviderGoogle, ExternalID: "g-1"})
	assert.ErrorIs(t, err, ErrAuthentication, "missing email")
}

func TestResolveNickname_precedence(t *testing.T) {
	cases := []struct {
		name  string
		ident model.ExternalIdentity
		want  string
	}{
		{"full name", model.ExternalIdentity{Name: "Ada Lovelace", GivenName: "Ada", Username: "ada", Email: "a@b.c"}, "Ada Lovelace"},
		{"given and family", model.ExternalIdentity{GivenName: "Ada", FamilyName: "Lovelace", Email: "a@b.c"}, "Ada Lovelace"},
		{"given only", model.ExternalIdentity{GivenName: "Ada", Email: "a@b.c"}, "Ada"},
		{"username", model.ExternalIdentity{Username: "ada42", Email: "a@b.c"}, "ada42"},
		{"email local part", model.ExternalIdentity{Email: "ada@example.com"}, "ada"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolveNickname(tc.ident))
		})
	}
}

func TestLinkWallet_uniqueness(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	alice, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "alice@example.com"))
	require.NoError(t, err)
	bob, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-2", "bob@example.com"))
	require.NoError(t, err)

	wallet, err := resolver.LinkWallet(ctx, alice.ID, testAddress, true)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, wallet.UserID)
	assert.Equal(t, "ethereum", wallet.Kind)

	_, err = resolver.LinkWallet(ctx, bob.ID, testAddress, false)
	assert.ErrorIs(t, err, ErrValidation, "address bound to another user")

	_, err = resolver.LinkWallet(ctx, alice.ID, testAddress, false)
	assert.ErrorIs(t, err, ErrValidation, "re-linking the same address is rejected too")
}

func TestUnlinkWallet(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	alice, err := resolver.ResolveOrCreate(ctx, googleIdentity("g-1", "alice@example.com"))
	require.NoError(t, err)
	wallet, err := resolver.LinkWallet(ctx, alice.ID, testAddress, false)
	require.NoError(t, err)

	removed, err := resolver.UnlinkWallet(ctx, alice.ID+1, wallet.ID)
	require.NoError(t, err)
	assert.False(t, removed, "other users cannot unlink the wallet")

	removed, err = resolver.UnlinkWallet(ctx, alice.ID, wallet.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = resolver.UnlinkWallet(ctx, alice.ID, wallet.ID)
	require.NoError(t, err)
	assert.False(t, removed, "unlink is idempotent")
}
