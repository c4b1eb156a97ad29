package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bountygo/server/internal/model"
)

// RefreshRepo defines the interface for refresh session repository
// operations. Sessions store only the SHA-256 hash of the raw token.
type RefreshRepo interface {
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (model.RefreshSession, error)
	FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	// ConsumeByHash atomically revokes a live session and returns it. The
	// revoked_at IS NULL precondition guarantees a token cannot be redeemed
	// twice concurrently.
	ConsumeByHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

const refreshColumns = `id, user_id, token_hash, expires_at, revoked_at, created_at`

func scanRefresh(row *sql.Row) (model.RefreshSession, error) {
	var s model.RefreshSession
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RefreshSession{}, ErrNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("scan refresh session: %w", err)
	}
	return s, nil
}

// Create inserts a new refresh session.
func (r *refreshRepo) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (model.RefreshSession, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO refresh_sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+refreshColumns+`
	`, userID, tokenHash, expiresAt)
	return scanRefresh(row)
}

// FindActiveByHash returns the session only if it is neither revoked nor
// expired. Revoked, expired, and never-existed are indistinguishable to the
// caller: all come back as ErrNotFound.
func (r *refreshRepo) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshColumns+` FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
	`, tokenHash)
	return scanRefresh(row)
}

// ConsumeByHash revokes and returns a live session in one statement.
func (r *refreshRepo) ConsumeByHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING `+refreshColumns+`
	`, tokenHash)
	return scanRefresh(row)
}

// RevokeByHash revokes the matching session. Revoking twice is a no-op
// reported as false, not an error.
func (r *refreshRepo) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// RevokeAllForUser revokes every live session for the user and returns how
// many were affected.
func (r *refreshRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteExpired removes sessions past expiry regardless of revoked state.
// Maintenance only; expiry is independently checked on every lookup, so this
// is safe to run concurrently and repeatedly.
func (r *refreshRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_sessions WHERE expires_at < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
