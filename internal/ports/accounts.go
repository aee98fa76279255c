package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, acct domain.PlatformAccount) (domain.PlatformAccount, error)
	Get(ctx context.Context, id string) (domain.PlatformAccount, error)
	List(ctx context.Context, limit int) ([]domain.PlatformAccount, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.PlatformAccount, error)
	// Due renvoie les comptes actifs dont next_check_at <= now, plus anciens d'abord.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.PlatformAccount, error)
	// UpdateSchedule ne fait jamais reculer next_check_at.
	UpdateSchedule(ctx context.Context, id string, lastCheckedAt, nextCheckAt time.Time) error
}
