package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bountygo/server/internal/model"
)

// WalletRepo defines the interface for wallet binding repository operations.
// Bindings are create-only: an address row is never moved between users.
type WalletRepo interface {
	GetByAddress(ctx context.Context, address string) (model.UserWallet, error)
	ListByUser(ctx context.Context, userID int64) ([]model.UserWallet, error)
	Create(ctx context.Context, userID int64, address, kind string, isPrimary bool) (model.UserWallet, error)
	Delete(ctx context.Context, userID, walletID int64) (bool, error)
}

type walletRepo struct {
	db *sql.DB
}

// NewWalletRepo creates a new WalletRepo instance
func NewWalletRepo(db *sql.DB) WalletRepo {
	return &walletRepo{db: db}
}

const walletColumns = `id, user_id, address, kind, is_primary, created_at`

func scanWallet(row *sql.Row) (model.UserWallet, error) {
	var w model.UserWallet
	err := row.Scan(&w.ID, &w.UserID, &w.Address, &w.Kind, &w.IsPrimary, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.UserWallet{}, ErrNotFound
		}
		return model.UserWallet{}, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}

// GetByAddress retrieves a binding by normalized address.
func (r *walletRepo) GetByAddress(ctx context.Context, address string) (model.UserWallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+` FROM user_wallets WHERE address = $1
	`, address)
	return scanWallet(row)
}

// ListByUser returns a user's wallets, primary first.
func (r *walletRepo) ListByUser(ctx context.Context, userID int64) ([]model.UserWallet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+walletColumns+` FROM user_wallets
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.UserWallet
	for rows.Next() {
		var w model.UserWallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &w.Kind, &w.IsPrimary, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Create inserts a binding. When isPrimary is set, other primary flags for
// the user are unset in the same transaction. A duplicate address anywhere
// returns ErrDuplicate.
func (r *walletRepo) Create(ctx context.Context, userID int64, address, kind string, isPrimary bool) (model.UserWallet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UserWallet{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if isPrimary {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_wallets SET is_primary = FALSE WHERE user_id = $1 AND is_primary
		`, userID); err != nil {
			return model.UserWallet{}, fmt.Errorf("unset primary wallets: %w", err)
		}
	}

	var w model.UserWallet
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_wallets (user_id, address, kind, is_primary)
		VALUES ($1, $2, $3, $4)
		RETURNING `+walletColumns+`
	`, userID, address, kind, isPrimary).Scan(
		&w.ID, &w.UserID, &w.Address, &w.Kind, &w.IsPrimary, &w.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.UserWallet{}, ErrDuplicate
		}
		return model.UserWallet{}, fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.UserWallet{}, fmt.Errorf("commit: %w", err)
	}
	return w, nil
}

// Delete removes a binding owned by the user. Returns false when no such
// row exists.
func (r *walletRepo) Delete(ctx context.Context, userID, walletID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM user_wallets WHERE id = $1 AND user_id = $2
	`, walletID, userID)
	if err != nil {
		return false, fmt.Errorf("delete wallet: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}
