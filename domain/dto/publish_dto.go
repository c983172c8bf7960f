package dto

import (
	"time"

	"content-publisher/domain/model"
)

type MediaDto struct {
	Type string `json:"type" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

// PublishRequestDto is the inbound shape submitted by the authoring subsystem.
type PublishRequestDto struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ContentType string     `json:"contentType"`
	Media       []MediaDto `json:"media"`
	Hashtags    []string   `json:"hashtags"`
	Mentions    []string   `json:"mentions"`
	Platforms   []string   `json:"platforms"`
	Visibility  string     `json:"visibility"`
	// RunAt delays the publish jobs.
	RunAt *time.Time `json:"runAt,omitempty"`
}

func (d PublishRequestDto) ToModel() model.PublishRequest {
	req := model.PublishRequest{
		Title:       d.Title,
		Body:        d.Body,
		ContentType: d.ContentType,
		Hashtags:    d.Hashtags,
		Mentions:    d.Mentions,
		Platforms:   d.Platforms,
		Visibility:  d.Visibility,
	}
	for _, m := range d.Media {
		req.Media = append(req.Media, model.MediaItem{Type: model.MediaType(m.Type), URL: m.URL})
	}
	return req
}

// EnqueuedJob is returned per platform by the enqueue endpoint.
type EnqueuedJob struct {
	Platform string `json:"platform"`
	JobID    string `json:"jobId,omitempty"`
	Error    string `json:"error,omitempty"`
}
