package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type userRepo struct{ m *RepositoryManager }

func (r *userRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	defer r.m.lockWrite(ctx)()

	for _, existing := range r.m.data.users {
		if existing.Email == u.Email {
			return nil, fmt.Errorf("%w: email already registered", common.ErrorBadRequest)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	r.m.data.users[u.ID] = *u
	return u, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	for _, u := range r.m.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	u, ok := r.m.data.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

type tokenRepo struct{ m *RepositoryManager }

func (r *tokenRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	defer r.m.lockWrite(ctx)()

	rec := *t
	rec.Revoked = false
	r.m.data.tokens[t.ID] = rec
	return nil
}

func (r *tokenRepo) FindActiveByLookup(_ context.Context, lookupKey string, now time.Time) ([]*models.RefreshToken, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.RefreshToken
	for _, t := range r.m.data.tokens {
		if t.LookupKey == lookupKey && t.Active(now) {
			rec := t
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *tokenRepo) DeleteStaleForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	defer r.m.lockWrite(ctx)()

	var n int64
	for id, t := range r.m.data.tokens {
		if t.UserID == userID && !t.Active(now) {
			delete(r.m.data.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) CountActiveForUser(_ context.Context, userID string, now time.Time) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	n := 0
	for _, t := range r.m.data.tokens {
		if t.UserID == userID && t.Active(now) {
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteOldestActiveForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	defer r.m.lockWrite(ctx)()

	var active []models.RefreshToken
	for _, t := range r.m.data.tokens {
		if t.UserID == userID && t.Active(now) {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return 0, nil
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	delete(r.m.data.tokens, active[0].ID)
	return 1, nil
}

func (r *tokenRepo) MarkRevoked(ctx context.Context, id string) (bool, error) {
	defer r.m.lockWrite(ctx)()

	t, ok := r.m.data.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	r.m.data.tokens[id] = t
	return true, nil
}

func (r *tokenRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	defer r.m.lockWrite(ctx)()

	var n int64
	for id, t := range r.m.data.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			r.m.data.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteRevokedOrExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.m.lockWrite(ctx)()

	var n int64
	for id, t := range r.m.data.tokens {
		if !t.Active(now) {
			delete(r.m.data.tokens, id)
			n++
		}
	}
	return n, nil
}

type blacklistRepo struct{ m *RepositoryManager }

func (r *blacklistRepo) Add(ctx context.Context, e *models.BlacklistedToken) error {
	defer r.m.lockWrite(ctx)()

	if _, ok := r.m.data.blacklist[e.Token]; !ok {
		r.m.data.blacklist[e.Token] = *e
	}
	return nil
}

func (r *blacklistRepo) Exists(_ context.Context, token string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	_, ok := r.m.data.blacklist[token]
	return ok, nil
}

func (r *blacklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.m.lockWrite(ctx)()

	var n int64
	for tok, e := range r.m.data.blacklist {
		if e.ExpiresAt.Before(now) {
			delete(r.m.data.blacklist, tok)
			n++
		}
	}
	return n, nil
}
