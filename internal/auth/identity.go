package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bountygo/server/internal/model"
	"github.com/bountygo/server/internal/repo"
)

// IdentityResolver maps a verified external identity onto the internal user
// graph: find an existing row, reconcile drifted profile fields, or create a
// new user. Wallet binding is a distinct explicit operation, never an
// auto-create path, since a signature alone carries no email.
type IdentityResolver struct {
	users   repo.UserRepo
	wallets repo.WalletRepo
}

// NewIdentityResolver creates a new identity resolver
func NewIdentityResolver(users repo.UserRepo, wallets repo.WalletRepo) *IdentityResolver {
	return &IdentityResolver{users: users, wallets: wallets}
}

// ResolveOrCreate finds the user for a verified external identity. External
// id match takes precedence over email match: the id is
// provider-authoritative while the email can be changed upstream.
func (r *IdentityResolver) ResolveOrCreate(ctx context.Context, ident model.ExternalIdentity) (model.User, error) {
	if ident.ExternalID == "" || ident.Email == "" {
		return model.User{}, fmt.Errorf("%w: external identity missing id or email", ErrAuthentication)
	}

	user, err := r.users.FindActiveByProviderID(ctx, ident.Provider, ident.ExternalID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, err
	}
	if errors.Is(err, repo.ErrNotFound) {
		user, err = r.users.FindActiveByEmail(ctx, ident.Email)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return model.User{}, err
		}
		if errors.Is(err, repo.ErrNotFound) {
			return r.createFromIdentity(ctx, ident)
		}
	}

	return r.reconcile(ctx, user, ident)
}

// reconcile updates the user row with drifted upstream profile data,
// persisting only when something actually changed.
func (r *IdentityResolver) reconcile(ctx context.Context, user model.User, ident model.ExternalIdentity) (model.User, error) {
	changed := false

	current := externalID(user, ident.Provider)
	if current == nil || *current != ident.ExternalID {
		setExternalID(&user, ident.Provider, ident.ExternalID)
		changed = true
	}

	if ident.Email != "" && user.Email != ident.Email {
		user.Email = ident.Email
		changed = true
	}

	if nickname := resolveNickname(ident); nickname != "" && user.Nickname != nickname {
		user.Nickname = nickname
		changed = true
	}

	if ident.AvatarURL != "" && (user.AvatarURL == nil || *user.AvatarURL != ident.AvatarURL) {
		avatar := ident.AvatarURL
		user.AvatarURL = &avatar
		changed = true
	}

	if !changed {
		return user, nil
	}
	return r.users.Update(ctx, user)
}

func (r *IdentityResolver) createFromIdentity(ctx context.Context, ident model.ExternalIdentity) (model.User, error) {
	user := model.User{
		Email:    ident.Email,
		Nickname: resolveNickname(ident),
		IsActive: true,
	}
	if ident.AvatarURL != "" {
		avatar := ident.AvatarURL
		user.AvatarURL = &avatar
	}
	setExternalID(&user, ident.Provider, ident.ExternalID)

	return r.users.Create(ctx, user)
}

// LinkWallet binds a verified address to the user. Create-only: an address
// already bound to any user, including this one, fails with ErrValidation.
func (r *IdentityResolver) LinkWallet(ctx context.Context, userID int64, address string, isPrimary bool) (model.UserWallet, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return model.UserWallet{}, err
	}

	if _, err := r.wallets.GetByAddress(ctx, addr); err == nil {
		return model.UserWallet{}, fmt.Errorf("%w: wallet address is already linked to an account", ErrValidation)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.UserWallet{}, err
	}

	wallet, err := r.wallets.Create(ctx, userID, addr, "ethereum", isPrimary)
	if err != nil {
		// Lost the race to another concurrent link of the same address.
		if errors.Is(err, repo.ErrDuplicate) {
			return model.UserWallet{}, fmt.Errorf("%w: wallet address is already linked to an account", ErrValidation)
		}
		return model.UserWallet{}, err
	}
	return wallet, nil
}

// UnlinkWallet deletes the binding. A missing binding is reported as false,
// not an error.
func (r *IdentityResolver) UnlinkWallet(ctx context.Context, userID, walletID int64) (bool, error) {
	return r.wallets.Delete(ctx, userID, walletID)
}

// Wallets lists the user's wallet bindings, primary first.
func (r *IdentityResolver) Wallets(ctx context.Context, userID int64) ([]model.UserWallet, error) {
	return r.wallets.ListByUser(ctx, userID)
}

// resolveNickname picks a display name: full name, then given name, then
// username, then the local part of the email.
func resolveNickname(ident model.ExternalIdentity) string {
	if ident.Name != "" {
		return ident.Name
	}
	if ident.GivenName != "" && ident.FamilyName != "" {
		return ident.GivenName + " " + ident.FamilyName
	}
	if ident.GivenName != "" {
		return ident.GivenName
	}
	if ident.Username != "" {
		return ident.Username
	}
	if at := strings.Index(ident.Email, "@"); at > 0 {
		return ident.Email[:at]
	}
	return ident.Email
}

func externalID(user model.User, provider model.Provider) *string {
	switch provider {
	case model.ProviderGoogle:
		return user.GoogleID
	case model.ProviderClerk:
		return user.ClerkID
	}
	return nil
}

func setExternalID(user *model.User, provider model.Provider, id string) {
	switch provider {
	case model.ProviderGoogle:
		user.GoogleID = &id
	case model.ProviderClerk:
		user.ClerkID = &id
	}
}
