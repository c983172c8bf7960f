package model

import (
	"fmt"
	"strings"
)

const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformYouTube   = "youtube"
	PlatformWordPress = "wordpress"
	PlatformTwitter   = "twitter"
	PlatformReddit    = "reddit"
	PlatformMedium    = "medium"
	PlatformTikTok    = "tiktok"
	PlatformZalo      = "zalo"
)

// AllPlatforms lists every platform an adapter exists for.
var AllPlatforms = []string{
	PlatformInstagram,
	PlatformFacebook,
	PlatformYouTube,
	PlatformWordPress,
	PlatformTwitter,
	PlatformReddit,
	PlatformMedium,
	PlatformTikTok,
	PlatformZalo,
}

// NormalizePlatform lower-cases and validates a platform name.
func NormalizePlatform(name string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(name))
	if p == "x" {
		p = PlatformTwitter
	}
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
}
