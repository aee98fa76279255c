package domain

import (
	"encoding/json"
	"time"
)

// LiveSession représente une diffusion continue d'un compte.
// Au plus une session par compte peut avoir EndedAt == nil.
type LiveSession struct {
	ID                string
	PlatformAccountID string

	IsLive    bool
	StartedAt time.Time
	EndedAt   *time.Time

	Title        string
	Category     string
	ViewerCount  *int64
	StreamURL    string
	ThumbnailURL string
	Raw          json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s LiveSession) IsOpen() bool { return s.EndedAt == nil }

// SessionUpdate porte les seuls champs modifiables d'une session ouverte.
type SessionUpdate struct {
	Title       string
	ViewerCount *int64
	UpdatedAt   time.Time
}

type StatusEventType string

const (
	EventWentLive    StatusEventType = "went_live"
	EventWentOffline StatusEventType = "went_offline"
)

// StatusEvent est un enregistrement d'audit en écriture seule.
type StatusEvent struct {
	ID                string
	PlatformAccountID string
	Type              StatusEventType
	Payload           json.RawMessage
	CreatedAt         time.Time
}
