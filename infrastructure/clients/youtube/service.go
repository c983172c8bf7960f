package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/clients/shared"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// newService builds a Data API client that sends token over client's transport.
func newService(ctx context.Context, client *http.Client, token, endpoint string) (*youtube.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return svc, nil
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"uploadLimitExceeded":   true,
}

// apiError classifies a Data API failure.
func apiError(err error) error {
	var ge *googleapi.Error
	if !errors.As(err, &ge) {
		return shared.TransportError(err)
	}
	kind := shared.ClassifyStatus(ge.Code)
	code := fmt.Sprint(ge.Code)
	for _, item := range ge.Errors {
		if item.Reason != "" {
			code = item.Reason
		}
		if quotaReasons[item.Reason] {
			kind = model.KindRateLimited
		}
	}
	return &model.PlatformError{Kind: kind, Code: code, Message: ge.Message, Err: err}
}
