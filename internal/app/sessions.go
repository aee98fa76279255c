package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type SessionDTO struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`

	IsLive    bool       `json:"isLive"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Title        string `json:"title"`
	Category     string `json:"category,omitempty"`
	ViewerCount  *int64 `json:"viewerCount,omitempty"`
	StreamURL    string `json:"streamUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func toSessionDTO(s domain.LiveSession) SessionDTO {
	return SessionDTO{
		ID:           s.ID,
		AccountID:    s.PlatformAccountID,
		IsLive:       s.IsLive,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Title:        s.Title,
		Category:     s.Category,
		ViewerCount:  s.ViewerCount,
		StreamURL:    s.StreamURL,
		ThumbnailURL: s.ThumbnailURL,
		UpdatedAt:    s.UpdatedAt,
	}
}

type StatusEventDTO struct {
	ID        string                 `json:"id"`
	AccountID string                 `json:"accountId"`
	Type      domain.StatusEventType `json:"type"`
	Payload   json.RawMessage        `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

func toStatusEventDTO(e domain.StatusEvent) StatusEventDTO {
	return StatusEventDTO{
		ID:        e.ID,
		AccountID: e.PlatformAccountID,
		Type:      e.Type,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

// SessionQueryService expose en lecture seule ce que le poller a produit.
type SessionQueryService struct {
	sessions ports.SessionRepository
	events   ports.StatusEventRepository
}

func NewSessionQueryService(sessions ports.SessionRepository, events ports.StatusEventRepository) *SessionQueryService {
	return &SessionQueryService{sessions: sessions, events: events}
}

func (s *SessionQueryService) Live(ctx context.Context, limit int) ([]SessionDTO, error) {
	rows, err := s.sessions.ListOpen(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSessionDTO(r))
	}
	return out, nil
}

func (s *SessionQueryService) AccountSessions(ctx context.Context, accountID string, limit int) ([]SessionDTO, error) {
	rows, err := s.sessions.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toSessionDTO(r))
	}
	return out, nil
}

func (s *SessionQueryService) AccountEvents(ctx context.Context, accountID string, limit int) ([]StatusEventDTO, error) {
	rows, err := s.events.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]StatusEventDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toStatusEventDTO(r))
	}
	return out, nil
}

func publishSession(bus ports.EventBus, topic string, s domain.LiveSession) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(toSessionDTO(s))
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}
