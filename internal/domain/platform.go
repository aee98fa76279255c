package domain

import (
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformTwitch    Platform = "twitch"
	PlatformYouTube   Platform = "youtube"
	PlatformKick      Platform = "kick"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Platforms liste toutes les plateformes connues, dans un ordre stable.
func Platforms() []Platform {
	return []Platform{
		PlatformTwitch,
		PlatformYouTube,
		PlatformKick,
		PlatformTikTok,
		PlatformInstagram,
		PlatformFacebook,
	}
}

func (p Platform) Valid() bool {
	for _, known := range Platforms() {
		if p == known {
			return true
		}
	}
	return false
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}
