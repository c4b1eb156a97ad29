package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bountygo/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (model.User, error)
	GetActiveByID(ctx context.Context, id int64) (model.User, error)
	FindActiveByProviderID(ctx context.Context, provider model.Provider, externalID string) (model.User, error)
	FindActiveByEmail(ctx context.Context, email string) (model.User, error)
	FindActiveByWalletAddress(ctx context.Context, address string) (model.User, error)
	Create(ctx context.Context, user model.User) (model.User, error)
	Update(ctx context.Context, user model.User) (model.User, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, nickname, avatar_url, google_id, clerk_id, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Nickname,
		&user.AvatarURL,
		&user.GoogleID,
		&user.ClerkID,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID regardless of active state.
func (r *userRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetActiveByID retrieves an active user by ID. Deactivated users are
// reported as not found.
func (r *userRepo) GetActiveByID(ctx context.Context, id int64) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active
	`, id)
	return scanUser(row)
}

// FindActiveByProviderID looks up an active user by the provider-specific
// external id column.
func (r *userRepo) FindActiveByProviderID(ctx context.Context, provider model.Provider, externalID string) (model.User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return model.User{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE `+column+` = $1 AND is_active
	`, externalID)
	return scanUser(row)
}

// FindActiveByEmail looks up an active user by unique email.
func (r *userRepo) FindActiveByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active
	`, email)
	return scanUser(row)
}

// FindActiveByWalletAddress looks up the active user owning the normalized
// wallet address.
func (r *userRepo) FindActiveByWalletAddress(ctx context.Context, address string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.nickname, u.avatar_url, u.google_id, u.clerk_id, u.is_active, u.created_at, u.updated_at
		FROM users u
		JOIN user_wallets w ON w.user_id = u.id
		WHERE w.address = $1 AND u.is_active
	`, address)
	return scanUser(row)
}

// Create inserts a new user row.
func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, nickname, avatar_url, google_id, clerk_id, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING `+userColumns+`
	`, user.Email, user.Nickname, user.AvatarURL, user.GoogleID, user.ClerkID)

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, err
	}
	return created, nil
}

// Update persists the mutable profile and binding fields.
func (r *userRepo) Update(ctx context.Context, user model.User) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET email = $2, nickname = $3, avatar_url = $4, google_id = $5, clerk_id = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, user.ID, user.Email, user.Nickname, user.AvatarURL, user.GoogleID, user.ClerkID)

	updated, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, err
	}
	return updated, nil
}

// Deactivate soft-deletes a user. Auth-facing lookups treat the row as not
// found afterwards.
func (r *userRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1 AND is_active
	`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate user: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func providerColumn(provider model.Provider) (string, error) {
	switch provider {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderClerk:
		return "clerk_id", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}
