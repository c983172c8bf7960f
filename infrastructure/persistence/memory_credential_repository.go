package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"content-publisher/domain/model"
)

// MemoryCredentialRepository keeps credentials in process. Used when no
// database is configured and in tests.
type MemoryCredentialRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]model.Credential
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{rows: make(map[string]model.Credential)}
}

func memKey(userID, platform string) string { return platform + "/" + userID }

func (r *MemoryCredentialRepository) Get(ctx context.Context, userID, platform string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[memKey(userID, platform)]
	if !ok {
		return nil, model.ErrCredentialNotFound
	}
	return &c, nil
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, c *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := memKey(c.UserID, c.Platform)
	if prev, ok := r.rows[key]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
		c.Version = prev.Version + 1
	} else {
		r.nextID++
		c.ID = r.nextID
		c.Version = 1
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	c.UpdatedAt = now
	r.rows[key] = *c
	return nil
}

func (r *MemoryCredentialRepository) ListByPlatform(ctx context.Context, platform string) ([]*model.Credential, error) {
	return r.list(platform, func(model.Credential) bool { return true }), nil
}

func (r *MemoryCredentialRepository) ListExpiring(ctx context.Context, platform string, before time.Time) ([]*model.Credential, error) {
	out := r.list(platform, func(c model.Credential) bool {
		return c.ExpiresAt != nil && c.ExpiresAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (r *MemoryCredentialRepository) list(platform string, keep func(model.Credential) bool) []*model.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Credential
	for _, c := range r.rows {
		if c.Platform != platform || !keep(c) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
