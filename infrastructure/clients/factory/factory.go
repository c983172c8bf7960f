package factory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"content-publisher/domain/model"
	"content-publisher/domain/repository"
	"content-publisher/infrastructure/clients/facebook"
	"content-publisher/infrastructure/clients/instagram"
	"content-publisher/infrastructure/clients/medium"
	"content-publisher/infrastructure/clients/reddit"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/clients/stub"
	"content-publisher/infrastructure/clients/twitter"
	"content-publisher/infrastructure/clients/wordpress"
	"content-publisher/infrastructure/clients/youtube"
	"content-publisher/infrastructure/configuration"
	"content-publisher/infrastructure/logger"
)

const apiTimeout = 30 * time.Second

// Factory builds publishing adapters. Token managers live for the whole
// process, one per (user, platform); adapters are built fresh per call.
type Factory struct {
	store   repository.ICredential
	locker  repository.ILocker
	cfg     configuration.Platforms
	enabled map[string]bool
	clients map[string]*http.Client

	mu       sync.Mutex
	managers map[string]repository.ITokenManager
}

func NewFactory(store repository.ICredential, locker repository.ILocker, cfg configuration.Platforms) *Factory {
	f := &Factory{
		store:    store,
		locker:   locker,
		cfg:      cfg,
		enabled:  map[string]bool{},
		managers: map[string]repository.ITokenManager{},
		clients: map[string]*http.Client{
			model.PlatformInstagram: shared.NewHTTPClient(cfg.Instagram.RateLimit, apiTimeout),
			model.PlatformFacebook:  shared.NewHTTPClient(cfg.Facebook.RateLimit, apiTimeout),
			// uploads stream for minutes; the job context bounds them instead
			model.PlatformYouTube:   shared.NewHTTPClient(cfg.YouTube.RateLimit, 0),
			model.PlatformWordPress: shared.NewHTTPClient(cfg.WordPress.RateLimit, apiTimeout),
			model.PlatformTwitter:   shared.NewHTTPClient(cfg.Twitter.RateLimit, apiTimeout),
			model.PlatformReddit:    shared.NewHTTPClient(cfg.Reddit.RateLimit, apiTimeout),
			model.PlatformMedium:    shared.NewHTTPClient(cfg.Medium.RateLimit, apiTimeout),
		},
	}
	enabled := cfg.Enabled
	if len(enabled) == 0 {
		enabled = model.AllPlatforms
	}
	for _, name := range enabled {
		if p, err := model.NormalizePlatform(name); err == nil {
			f.enabled[p] = true
		} else {
			logger.GetLogger().WithField("platform", name).Warn("Ignoring unknown platform in enabled list")
		}
	}
	return f
}

// WithClient replaces the outbound client of one platform.
func (f *Factory) WithClient(platform string, client *http.Client) *Factory {
	f.clients[platform] = client
	return f
}

// Platforms lists the enabled platforms in their canonical order.
func (f *Factory) Platforms() []string {
	out := make([]string, 0, len(f.enabled))
	for _, p := range model.AllPlatforms {
		if f.enabled[p] {
			out = append(out, p)
		}
	}
	return out
}

func (f *Factory) resolve(name string) (string, error) {
	platform, err := model.NormalizePlatform(name)
	if err != nil {
		return "", err
	}
	if !f.enabled[platform] {
		return "", fmt.Errorf("%w: %s", model.ErrPlatformDisabled, platform)
	}
	return platform, nil
}

// Create returns an adapter acting for userID on platform.
func (f *Factory) Create(ctx context.Context, platform, userID string) (repository.IPublisher, error) {
	platform, err := f.resolve(platform)
	if err != nil {
		return nil, err
	}
	if isStub(platform) {
		return stub.NewPublisher(platform), nil
	}
	tokens, err := f.Manager(ctx, platform, userID)
	if err != nil {
		return nil, err
	}
	client := f.clients[platform]
	switch platform {
	case model.PlatformInstagram:
		return instagram.NewPublisher(tokens, client, f.cfg.Instagram), nil
	case model.PlatformFacebook:
		return facebook.NewPublisher(tokens, client, f.cfg.Facebook), nil
	case model.PlatformYouTube:
		return youtube.NewPublisher(tokens, client, f.cfg.YouTube), nil
	case model.PlatformWordPress:
		return wordpress.NewPublisher(tokens, client, f.cfg.WordPress), nil
	case model.PlatformTwitter:
		return twitter.NewPublisher(tokens, client, f.cfg.Twitter), nil
	case model.PlatformReddit:
		return reddit.NewPublisher(tokens, client, f.cfg.Reddit), nil
	case model.PlatformMedium:
		return medium.NewPublisher(tokens, client, f.cfg.Medium), nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnknownPlatform, platform)
}

// Manager returns the cached token manager of (userID, platform), loading
// the credential on first use.
func (f *Factory) Manager(ctx context.Context, platform, userID string) (repository.ITokenManager, error) {
	platform, err := f.resolve(platform)
	if err != nil {
		return nil, err
	}
	if isStub(platform) {
		return stub.NewTokenManager(model.Credential{UserID: userID, Platform: platform}), nil
	}

	key := platform + "/" + userID
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.managers[key]; ok {
		return m, nil
	}
	cred, err := f.store.Get(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	m := f.newManager(*cred)
	f.managers[key] = m
	return m, nil
}

// Forget drops the cached manager so the next call reloads the credential.
func (f *Factory) Forget(platform, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.managers, platform+"/"+userID)
}

func (f *Factory) newManager(cred model.Credential) repository.ITokenManager {
	client := f.clients[cred.Platform]
	var rotating []shared.LifecycleOption
	if f.locker != nil {
		rotating = append(rotating, shared.WithLocker(f.locker))
	}
	switch cred.Platform {
	case model.PlatformInstagram:
		return instagram.NewTokenManager(cred, f.store, client, f.cfg.Instagram)
	case model.PlatformFacebook:
		return facebook.NewTokenManager(cred, f.store, client, f.cfg.Facebook)
	case model.PlatformYouTube:
		return youtube.NewTokenManager(cred, f.store, client, f.cfg.YouTube, rotating...)
	case model.PlatformWordPress:
		return wordpress.NewTokenManager(cred, f.store, client)
	case model.PlatformTwitter:
		return twitter.NewTokenManager(cred, f.store, client, f.cfg.Twitter)
	case model.PlatformReddit:
		return reddit.NewTokenManager(cred, f.store, client, f.cfg.Reddit)
	case model.PlatformMedium:
		return medium.NewTokenManager(cred, f.store, client, f.cfg.Medium, rotating...)
	}
	return stub.NewTokenManager(cred)
}

func isStub(platform string) bool {
	return platform == model.PlatformTikTok || platform == model.PlatformZalo
}
