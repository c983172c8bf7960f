package model

import (
	"errors"
	"fmt"
	"strings"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type MediaItem struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// PublishRequest is the normalized post handed to every adapter.
type PublishRequest struct {
	Title       string      `json:"title,omitempty"`
	Body        string      `json:"body,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Media       []MediaItem `json:"media,omitempty"`
	Hashtags    []string    `json:"hashtags,omitempty"`
	Mentions    []string    `json:"mentions,omitempty"`
	Platforms   []string    `json:"platforms,omitempty"`
	// Visibility is honoured by platforms that support it (youtube privacy, wordpress status).
	Visibility string `json:"visibility,omitempty"`
}

// Validate checks the platform independent preconditions.
func (r *PublishRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Body) == "" && len(r.Media) == 0 {
		return fmt.Errorf("%w: one of title, body or media is required", ErrValidation)
	}
	for i, m := range r.Media {
		if m.Type != MediaImage && m.Type != MediaVideo {
			return fmt.Errorf("%w: media[%d] has unknown type %q", ErrValidation, i, m.Type)
		}
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("%w: media[%d] has no url", ErrValidation, i)
		}
	}
	return nil
}

// CountMedia returns the number of images and videos.
func (r *PublishRequest) CountMedia() (images, videos int) {
	for _, m := range r.Media {
		switch m.Type {
		case MediaImage:
			images++
		case MediaVideo:
			videos++
		}
	}
	return images, videos
}

// PublishResult is what an adapter reports for one publish or update call.
type PublishResult struct {
	Platform       string    `json:"platform"`
	Success        bool      `json:"success"`
	ExternalPostID string    `json:"external_post_id,omitempty"`
	Permalink      string    `json:"permalink,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
}

// Succeeded builds a successful result. An empty permalink falls back to the native id.
func Succeeded(platform, externalID, permalink string) *PublishResult {
	if permalink == "" {
		permalink = externalID
	}
	return &PublishResult{Platform: platform, Success: true, ExternalPostID: externalID, Permalink: permalink}
}

// Failed converts err into a failed result, keeping kind and platform code.
func Failed(platform string, err error) *PublishResult {
	res := &PublishResult{Platform: platform, Success: false, ErrorKind: KindOf(err)}
	if err != nil {
		res.Error = err.Error()
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		res.ErrorCode = pe.Code
	}
	return res
}

// Err turns a failed result back into an error the queue can classify.
func (r *PublishResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &PlatformError{Kind: r.ErrorKind, Code: r.ErrorCode, Message: r.Error}
}

// Metrics are engagement counters for one published post. Platforms that do not
// expose a counter leave it at zero.
type Metrics struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}
