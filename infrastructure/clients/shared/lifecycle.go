package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/cache"
	"content-publisher/infrastructure/logger"
	"content-publisher/infrastructure/utils"
)

// DefaultExpiryBuffer is subtracted from a token's expiry before it is served from cache.
const DefaultExpiryBuffer = 5 * time.Minute

// RefreshFunc calls the platform token endpoint with the current credential.
type RefreshFunc func(ctx context.Context, cred model.Credential) (*model.TokenGrant, error)

// Lifecycle caches the access token of one (user, platform) and refreshes it
// once the buffered expiry has passed. Each platform manager embeds one and
// supplies its own RefreshFunc.
type Lifecycle struct {
	store   repository.ICredential
	refresh RefreshFunc
	locker  repository.ILocker
	buffer  time.Duration
	now     func() time.Time

	mu   sync.Mutex
	cred model.Credential
}

type LifecycleOption func(*Lifecycle)

// WithLocker serialises refreshes of this credential across workers. Required
// for platforms that rotate the refresh token.
func WithLocker(locker repository.ILocker) LifecycleOption {
	return func(l *Lifecycle) { l.locker = locker }
}

func WithBuffer(d time.Duration) LifecycleOption {
	return func(l *Lifecycle) { l.buffer = d }
}

func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

func NewLifecycle(cred model.Credential, store repository.ICredential, refresh RefreshFunc, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:   store,
		refresh: refresh,
		buffer:  DefaultExpiryBuffer,
		now:     time.Now,
		cred:    cred,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Credential returns a copy of the current credential.
func (l *Lifecycle) Credential() model.Credential {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cred
}

// IsExpired is true iff the credential has an expiry and now is at or past it.
func (l *Lifecycle) IsExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cred.Expired(l.now())
}

// Token returns the cached access token, refreshing first when now >= expiresAt - buffer.
func (l *Lifecycle) Token(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dueLocked() {
		return l.cred.AccessToken, nil
	}
	if _, err := l.refreshLocked(ctx, false); err != nil {
		return "", err
	}
	return l.cred.AccessToken, nil
}

// Refresh calls the platform unconditionally and persists the new grant.
func (l *Lifecycle) Refresh(ctx context.Context) (*model.TokenGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshLocked(ctx, true)
}

func (l *Lifecycle) dueLocked() bool {
	if l.cred.ExpiresAt == nil || l.refresh == nil {
		return false
	}
	return !l.now().Before(l.cred.ExpiresAt.Add(-l.buffer))
}

func (l *Lifecycle) refreshLocked(ctx context.Context, force bool) (*model.TokenGrant, error) {
	if l.refresh == nil {
		return nil, nil
	}
	log := logger.GetLogger().
		WithField("user_id", l.cred.UserID).
		WithField("platform", l.cred.Platform)

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, cache.LockKey(l.cred.UserID, l.cred.Platform))
		if err != nil {
			return nil, fmt.Errorf("lock credential: %w", err)
		}
		defer unlock()

		// Another worker may have rotated the pair while we waited.
		stored, err := l.store.Get(ctx, l.cred.UserID, l.cred.Platform)
		if err != nil {
			return nil, fmt.Errorf("reload credential: %w", err)
		}
		if stored.Version > l.cred.Version {
			l.cred = *stored
			if !force && !l.dueLocked() {
				log.Debug("Credential already refreshed by another worker")
				return grantOf(l.cred, l.now()), nil
			}
		}
	}

	grant, err := l.refresh(ctx, l.cred)
	if err != nil {
		log.WithField("error", err).Warn("Token refresh failed")
		return nil, err
	}

	next := l.cred
	next.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}
	if grant.ExpiresIn > 0 {
		exp := l.now().Add(grant.ExpiresIn).UTC()
		next.ExpiresAt = &exp
	} else {
		next.ExpiresAt = nil
	}
	if grant.AccountID != "" {
		next.PlatformAccountID = grant.AccountID
	}
	if grant.AccountName != "" {
		next.PlatformAccountName = grant.AccountName
	}
	if grant.TokenType != "" {
		next.TokenType = grant.TokenType
	}
	l.cred = next

	if err := l.store.Upsert(ctx, &next); err != nil {
		log.WithField("error", err).Error("Refreshed token could not be persisted")
		return nil, fmt.Errorf("persist refreshed credential: %w", err)
	}
	l.cred = next
	log.WithField("access_token", utils.MaskToken(next.AccessToken)).
		WithField("version", next.Version).
		Info("Token refreshed")
	return grant, nil
}

func grantOf(c model.Credential, now time.Time) *model.TokenGrant {
	g := &model.TokenGrant{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		AccountID:    c.PlatformAccountID,
		AccountName:  c.PlatformAccountName,
		TokenType:    c.TokenType,
	}
	if c.ExpiresAt != nil {
		g.ExpiresIn = c.ExpiresAt.Sub(now)
	}
	return g
}

// ProbeFunc checks a credential against the platform with a read-only call.
type ProbeFunc func(ctx context.Context, cred model.Credential) (bool, error)

// StaticRefresh is the refresh step of credentials that never expire. The
// token is kept as is; a token the platform no longer accepts is an auth error.
func StaticRefresh(probe ProbeFunc) RefreshFunc {
	return func(ctx context.Context, cred model.Credential) (*model.TokenGrant, error) {
		ok, err := VerifyResult(probe(ctx, cred))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.NewPlatformError(model.KindAuth, "", "stored %s credential was rejected", cred.Platform)
		}
		return &model.TokenGrant{AccessToken: cred.AccessToken, TokenType: cred.TokenType}, nil
	}
}
