package model

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobPublish             JobType = "publish"
	JobUpdate              JobType = "update"
	JobRefreshToken        JobType = "refreshToken"
	JobSweepExpiringTokens JobType = "sweepExpiringTokens"
)

type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one durable unit of work owned by the queue.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LastError   *string         `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	// UniqueKey de-duplicates scheduled and sweep generated jobs.
	UniqueKey  *string    `json:"unique_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

type PublishPayload struct {
	UserID   string         `json:"user_id"`
	Platform string         `json:"platform"`
	Request  PublishRequest `json:"request"`
}

type UpdatePayload struct {
	UserID     string         `json:"user_id"`
	Platform   string         `json:"platform"`
	ExternalID string         `json:"external_id"`
	Request    PublishRequest `json:"request"`
}

type RefreshTokenPayload struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	// Force refreshes even outside the expiry window.
	Force bool `json:"force,omitempty"`
}

type SweepPayload struct {
	Platform string `json:"platform"`
}

// JobStats counts jobs per status.
type JobStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// JobEvent is broadcast on every job transition.
type JobEvent struct {
	Type      string         `json:"type"`
	JobID     string         `json:"job_id"`
	JobType   JobType        `json:"job_type"`
	Status    JobStatus      `json:"status"`
	Attempt   int            `json:"attempt"`
	Terminal  bool           `json:"terminal"`
	UserID    string         `json:"user_id,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Result    *PublishResult `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
