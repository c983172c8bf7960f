package shared

import (
	"net/http"
	"time"

	"content-publisher/infrastructure/configuration"

	"golang.org/x/time/rate"
)

// RateLimitedTransport waits on a limiter before every outbound request.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

func (t *RateLimitedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(r.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// NewHTTPClient returns a client throttled to limit. One client per platform
// is shared by every adapter the factory builds.
func NewHTTPClient(limit configuration.RateLimit, timeout time.Duration) *http.Client {
	var limiter *rate.Limiter
	if limit.RequestsPerSecond > 0 {
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), burst)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &RateLimitedTransport{Limiter: limiter},
	}
}
