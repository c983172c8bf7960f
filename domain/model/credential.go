package model

import "time"

// Credential stores the platform token pair of one user. There is at most one
// row per (UserID, Platform); refreshes overwrite it in place.
type Credential struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`

	AccessToken string `json:"-"`
	// RefreshToken is the grant used to mint a new access token: an OAuth
	// refresh token, or the long-lived user token for the facebook exchange.
	RefreshToken string `json:"-"`
	// AccessSecret is the OAuth1 token secret (twitter) or the account
	// password of a reddit script app.
	AccessSecret string `json:"-"`

	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	PlatformAccountID   string     `json:"platform_account_id"`
	PlatformAccountName string     `json:"platform_account_name,omitempty"`
	Scopes              string     `json:"scopes"`
	TokenType           string     `json:"token_type,omitempty"` // user | page | bearer | basic | oauth1
	Version             int        `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Expired reports whether the credential has an expiry and now is at or past it.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// ExpiresWithin reports whether an expiring credential runs out before now+window.
func (c *Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Add(window).Before(*c.ExpiresAt)
}

// TokenGrant is what a platform token endpoint handed back on refresh.
type TokenGrant struct {
	AccessToken  string        `json:"-"`
	RefreshToken string        `json:"-"`
	ExpiresIn    time.Duration `json:"expires_in"`
	// AccountID/AccountName are set when the refresh also resolved the
	// account the token acts for (facebook page exchange).
	AccountID   string `json:"account_id,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// CredentialAudit is one historical version of a credential. Tokens are masked.
type CredentialAudit struct {
	UserID            string     `json:"user_id" bson:"user_id"`
	Platform          string     `json:"platform" bson:"platform"`
	Version           int        `json:"version" bson:"version"`
	AccessTokenMasked string     `json:"access_token_masked" bson:"access_token_masked"`
	RotatedRefresh    bool       `json:"rotated_refresh" bson:"rotated_refresh"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	PlatformAccountID string     `json:"platform_account_id" bson:"platform_account_id"`
	RecordedAt        time.Time  `json:"recorded_at" bson:"recorded_at"`
}
