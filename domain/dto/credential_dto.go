package dto

import "time"

// CredentialRequestDto connects a platform account for the calling user.
type CredentialRequestDto struct {
	AccessToken         string     `json:"accessToken" binding:"required"`
	RefreshToken        string     `json:"refreshToken"`
	AccessSecret        string     `json:"accessSecret"`
	ExpiresAt           *time.Time `json:"expiresAt"`
	ExpiresIn           int64      `json:"expiresIn"`
	PlatformAccountID   string     `json:"platformAccountId"`
	PlatformAccountName string     `json:"platformAccountName"`
	Scopes              string     `json:"scopes"`
	TokenType           string     `json:"tokenType"`
}

type CredentialStatusResponse struct {
	Platform            string     `json:"platform"`
	Connected           bool       `json:"connected"`
	Valid               bool       `json:"valid"`
	Expired             bool       `json:"expired"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	PlatformAccountID   string     `json:"platformAccountId,omitempty"`
	PlatformAccountName string     `json:"platformAccountName,omitempty"`
	Error               string     `json:"error,omitempty"`
}
