package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

type SettingsRepository interface {
	Get(ctx context.Context) (domain.PollSettings, error)
	Put(ctx context.Context, settings domain.PollSettings) (domain.PollSettings, error)
}
