package domain

import (
	"encoding/json"
	"time"
)

// Snapshot est le constat éphémère "ce compte est-il en live maintenant",
// produit par un adapter de plateforme à chaque passage.
type Snapshot struct {
	PlatformUserID string `json:"platform_user_id"`
	IsLive         bool   `json:"is_live"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	Title        string     `json:"title,omitempty"`
	Category     string     `json:"category,omitempty"`
	ViewerCount  *int64     `json:"viewer_count,omitempty"`
	StreamURL    string     `json:"stream_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

func OfflineSnapshot(platformUserID string) Snapshot {
	return Snapshot{PlatformUserID: platformUserID, IsLive: false}
}

// Payload sérialise le snapshot pour l'audit (StatusEvent.Payload).
func (s Snapshot) Payload() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
