package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

type SessionRepository interface {
	// FindOpen renvoie ErrNotFound s'il n'y a pas de session ouverte.
	FindOpen(ctx context.Context, accountID string) (domain.LiveSession, error)
	// Insert renvoie ErrConflict si une session ouverte existe déjà pour le compte.
	Insert(ctx context.Context, s domain.LiveSession) (domain.LiveSession, error)
	Update(ctx context.Context, id string, upd domain.SessionUpdate) error
	// Close renvoie ErrNotFound si la session n'est plus ouverte.
	Close(ctx context.Context, id string, endedAt time.Time) error
	ListOpen(ctx context.Context, limit int) ([]domain.LiveSession, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.LiveSession, error)
}

type StatusEventRepository interface {
	Insert(ctx context.Context, accountID string, typ domain.StatusEventType, payload json.RawMessage, at time.Time) (domain.StatusEvent, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.StatusEvent, error)
	// Latest renvoie le dernier événement du compte, ErrNotFound s'il n'y en a aucun.
	Latest(ctx context.Context, accountID string) (domain.StatusEvent, error)
}

// LiveView est une projection "qui est en live" pour les lecteurs externes.
type LiveView interface {
	Put(ctx context.Context, acct domain.PlatformAccount, s domain.LiveSession) error
	Remove(ctx context.Context, acct domain.PlatformAccount) error
}
