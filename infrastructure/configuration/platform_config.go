package configuration

import (
	"os"
	"strings"
	"time"

	"content-publisher/domain/model"
)

// Platforms configures every publishing adapter.
type Platforms struct {
	// Enabled restricts the factory to these platforms. Empty means all.
	Enabled   []string  `json:"enabled"`
	Instagram Instagram `json:"instagram"`
	Facebook  Facebook  `json:"facebook"`
	YouTube   YouTube   `json:"youtube"`
	WordPress WordPress `json:"wordpress"`
	Twitter   Twitter   `json:"twitter"`
	Reddit    Reddit    `json:"reddit"`
	Medium    Medium    `json:"medium"`
}

// RateLimit caps outbound calls to one platform for the whole process.
type RateLimit struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

type Instagram struct {
	GraphBaseURL      string        `json:"graphBaseURL"`
	PollInterval      time.Duration `json:"pollInterval"`
	ImagePollAttempts int           `json:"imagePollAttempts"`
	VideoPollAttempts int           `json:"videoPollAttempts"`
	RateLimit         RateLimit     `json:"rateLimit"`
}

type Facebook struct {
	GraphBaseURL string    `json:"graphBaseURL"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	RateLimit    RateLimit `json:"rateLimit"`
}

type YouTube struct {
	ClientID      string        `json:"clientId"`
	ClientSecret  string        `json:"clientSecret"`
	TokenURL      string        `json:"tokenURL"`
	APIBaseURL    string        `json:"apiBaseURL"`
	UploadBaseURL string        `json:"uploadBaseURL"`
	PrivacyStatus string        `json:"privacyStatus"`
	CategoryID    string        `json:"categoryId"`
	PollInterval  time.Duration `json:"pollInterval"`
	PollAttempts  int           `json:"pollAttempts"`
	UploadRetries int           `json:"uploadRetries"`
	UploadBackoff time.Duration `json:"uploadBackoff"`
	ResumeLimit   int           `json:"resumeLimit"`
	RateLimit     RateLimit     `json:"rateLimit"`
}

type WordPress struct {
	DefaultStatus string    `json:"defaultStatus"`
	RateLimit     RateLimit `json:"rateLimit"`
}

type Twitter struct {
	APIKey       string    `json:"apiKey"`
	APIKeySecret string    `json:"apiKeySecret"`
	RateLimit    RateLimit `json:"rateLimit"`
}

type Reddit struct {
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	UserAgent    string    `json:"userAgent"`
	RateLimit    RateLimit `json:"rateLimit"`
}

type Medium struct {
	ClientID      string    `json:"clientId"`
	ClientSecret  string    `json:"clientSecret"`
	APIBaseURL    string    `json:"apiBaseURL"`
	PublishStatus string    `json:"publishStatus"`
	RateLimit     RateLimit `json:"rateLimit"`
}

func initPlatforms(C *Config) {
	p := &C.Platforms
	if v := os.Getenv("PLATFORMS_ENABLED"); v != "" {
		p.Enabled = strings.Split(v, ",")
	}
	if len(p.Enabled) == 0 {
		p.Enabled = append([]string(nil), model.AllPlatforms...)
	}

	ig := &p.Instagram
	ig.GraphBaseURL = getConfigValue(ig.GraphBaseURL, "INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0")
	if ig.PollInterval <= 0 {
		ig.PollInterval = 2 * time.Second
	}
	if ig.ImagePollAttempts <= 0 {
		ig.ImagePollAttempts = 10
	}
	if ig.VideoPollAttempts <= 0 {
		ig.VideoPollAttempts = 30
	}
	defaultRate(&ig.RateLimit, 3, 5)

	fb := &p.Facebook
	fb.GraphBaseURL = getConfigValue(fb.GraphBaseURL, "FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v19.0")
	fb.ClientID = getConfigValue(fb.ClientID, "FACEBOOK_CLIENT_ID", C.OAuth.Facebook.ClientID)
	fb.ClientSecret = getConfigValue(fb.ClientSecret, "FACEBOOK_CLIENT_SECRET", C.OAuth.Facebook.ClientSecret)
	if C.OAuth.Facebook.ClientID == "" {
		C.OAuth.Facebook.ClientID = fb.ClientID
	}
	if C.OAuth.Facebook.ClientSecret == "" {
		C.OAuth.Facebook.ClientSecret = fb.ClientSecret
	}
	defaultRate(&fb.RateLimit, 3, 5)

	yt := &p.YouTube
	yt.ClientID = getConfigValue(yt.ClientID, "YOUTUBE_CLIENT_ID", "")
	yt.ClientSecret = getConfigValue(yt.ClientSecret, "YOUTUBE_CLIENT_SECRET", "")
	yt.TokenURL = getConfigValue(yt.TokenURL, "YOUTUBE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	yt.APIBaseURL = getConfigValue(yt.APIBaseURL, "YOUTUBE_API_URL", "https://youtube.googleapis.com/")
	yt.UploadBaseURL = getConfigValue(yt.UploadBaseURL, "YOUTUBE_UPLOAD_URL", "https://www.googleapis.com/upload/youtube/v3/videos")
	if yt.PrivacyStatus == "" {
		yt.PrivacyStatus = "public"
	}
	if yt.CategoryID == "" {
		yt.CategoryID = "22"
	}
	if yt.PollInterval <= 0 {
		yt.PollInterval = 10 * time.Second
	}
	if yt.PollAttempts <= 0 {
		yt.PollAttempts = 30
	}
	if yt.UploadRetries <= 0 {
		yt.UploadRetries = 3
	}
	if yt.UploadBackoff <= 0 {
		yt.UploadBackoff = time.Second
	}
	if yt.ResumeLimit <= 0 {
		yt.ResumeLimit = 50
	}
	defaultRate(&yt.RateLimit, 2, 4)

	if p.WordPress.DefaultStatus == "" {
		p.WordPress.DefaultStatus = "publish"
	}
	defaultRate(&p.WordPress.RateLimit, 5, 10)

	p.Twitter.APIKey = getConfigValue(p.Twitter.APIKey, "TWITTER_API_KEY", "")
	p.Twitter.APIKeySecret = getConfigValue(p.Twitter.APIKeySecret, "TWITTER_API_KEY_SECRET", "")
	defaultRate(&p.Twitter.RateLimit, 1, 3)

	p.Reddit.ClientID = getConfigValue(p.Reddit.ClientID, "REDDIT_CLIENT_ID", "")
	p.Reddit.ClientSecret = getConfigValue(p.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET", "")
	p.Reddit.UserAgent = getConfigValue(p.Reddit.UserAgent, "REDDIT_USER_AGENT", "content-publisher/1.0")
	defaultRate(&p.Reddit.RateLimit, 1, 2)

	p.Medium.ClientID = getConfigValue(p.Medium.ClientID, "MEDIUM_CLIENT_ID", "")
	p.Medium.ClientSecret = getConfigValue(p.Medium.ClientSecret, "MEDIUM_CLIENT_SECRET", "")
	p.Medium.APIBaseURL = getConfigValue(p.Medium.APIBaseURL, "MEDIUM_API_URL", "https://api.medium.com")
	if p.Medium.PublishStatus == "" {
		p.Medium.PublishStatus = "public"
	}
	defaultRate(&p.Medium.RateLimit, 1, 2)
}

func defaultRate(r *RateLimit, rps float64, burst int) {
	if r.RequestsPerSecond <= 0 {
		r.RequestsPerSecond = rps
	}
	if r.Burst <= 0 {
		r.Burst = burst
	}
}

// getConfigValue gets value from config first, then environment variable, then default
func getConfigValue(configValue, envKey, defaultValue string) string {
	// Environment variable takes precedence when provided
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return defaultValue
}
