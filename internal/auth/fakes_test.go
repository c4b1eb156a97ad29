package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bountygo/server/internal/model"
	"github.com/bountygo/server/internal/repo"
)

// In-memory repo fakes backing the resolver and service tests. They mirror
// the SQL repos' contract: repo.ErrNotFound for misses, repo.ErrDuplicate for
// unique violations, and the same active-row filtering.

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User

	wallets *fakeWalletRepo
}

func newFakeUserRepo(wallets *fakeWalletRepo) *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int64]model.User), wallets: wallets}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetActiveByID(ctx context.Context, id int64) (model.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if !u.IsActive {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindActiveByProviderID(_ context.Context, provider model.Provider, externalID string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if !u.IsActive || externalID == "" {
			continue
		}
		switch provider {
		case model.ProviderGoogle:
			if u.GoogleID != nil && *u.GoogleID == externalID {
				return u, nil
			}
		case model.ProviderClerk:
			if u.ClerkID != nil && *u.ClerkID == externalID {
				return u, nil
			}
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *fakeUserRepo) FindActiveByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.IsActive && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *fakeUserRepo) FindActiveByWalletAddress(ctx context.Context, address string) (model.User, error) {
	w, err := r.wallets.GetByAddress(ctx, address)
	if err != nil {
		return model.User{}, err
	}
	return r.GetActiveByID(ctx, w.UserID)
}

func (r *fakeUserRepo) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return model.User{}, repo.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return model.User{}, repo.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Deactivate(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.IsActive {
		return false, nil
	}
	u.IsActive = false
	r.users[id] = u
	return true, nil
}

type fakeWalletRepo struct {
	mu      sync.Mutex
	nextID  int64
	wallets map[int64]model.UserWallet
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{nextID: 1, wallets: make(map[int64]model.UserWallet)}
}

func (r *fakeWalletRepo) GetByAddress(_ context.Context, address string) (model.UserWallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.Address == address {
			return w, nil
		}
	}
	return model.UserWallet{}, repo.ErrNotFound
}

func (r *fakeWalletRepo) ListByUser(_ context.Context, userID int64) ([]model.UserWallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.UserWallet
	for _, w := range r.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWalletRepo) Create(_ context.Context, userID int64, address, kind string, isPrimary bool) (model.UserWallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.Address == address {
			return model.UserWallet{}, repo.ErrDuplicate
		}
	}
	w := model.UserWallet{
		ID:        r.nextID,
		UserID:    userID,
		Address:   address,
		Kind:      kind,
		IsPrimary: isPrimary,
		CreatedAt: time.Now(),
	}
	r.nextID++
	r.wallets[w.ID] = w
	return w, nil
}

func (r *fakeWalletRepo) Delete(_ context.Context, userID, walletID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok || w.UserID != userID {
		return false, nil
	}
	delete(r.wallets, walletID)
	return true, nil
}

type fakeRefreshRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]model.RefreshSession
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{nextID: 1, sessions: make(map[int64]model.RefreshSession)}
}

func (r *fakeRefreshRepo) Create(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := model.RefreshSession{
		ID:        r.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.nextID++
	r.sessions[s.ID] = s
	return s, nil
}

func (r *fakeRefreshRepo) FindActiveByHash(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return model.RefreshSession{}, repo.ErrNotFound
}

func (r *fakeRefreshRepo) ConsumeByHash(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil && s.ExpiresAt.After(time.Now()) {
			now := time.Now()
			s.RevokedAt = &now
			r.sessions[id] = s
			return s, nil
		}
	}
	return model.RefreshSession{}, repo.ErrNotFound
}

func (r *fakeRefreshRepo) RevokeByHash(_ context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil {
			now := time.Now()
			s.RevokedAt = &now
			r.sessions[id] = s
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			r.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(time.Now()) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshRepo) liveCount(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}
