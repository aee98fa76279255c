package platforms

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type Config struct {
	Twitch  TwitchConfig
	YouTube YouTubeConfig
	Kick    KickConfig
}

// NewRegistry construit une fois pour toutes l'adapter de chaque plateforme.
func NewRegistry(cfg Config, client *http.Client, logger zerolog.Logger) map[domain.Platform]ports.PlatformAdapter {
	logger = logger.With().Str("component", "platforms").Logger()
	return map[domain.Platform]ports.PlatformAdapter{
		domain.PlatformTwitch:    NewTwitch(cfg.Twitch, client, logger),
		domain.PlatformYouTube:   NewYouTube(cfg.YouTube, client, logger),
		domain.PlatformKick:      NewKick(cfg.Kick, client, logger),
		domain.PlatformTikTok:    NewStub(domain.PlatformTikTok),
		domain.PlatformInstagram: NewStub(domain.PlatformInstagram),
		domain.PlatformFacebook:  NewStub(domain.PlatformFacebook),
	}
}
