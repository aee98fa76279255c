package redislive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

const DefaultTTL = 6 * time.Hour

// Entry est la valeur JSON stockée pour chaque compte en live.
type Entry struct {
	AccountID    string    `json:"accountId"`
	Platform     string    `json:"platform"`
	Username     string    `json:"username"`
	SessionID    string    `json:"sessionId"`
	StartedAt    time.Time `json:"startedAt"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	ViewerCount  *int64    `json:"viewerCount,omitempty"`
	StreamURL    string    `json:"streamUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// View projette les sessions ouvertes dans un hash Redis par plateforme
// (champ = id du compte). Les lecteurs n'ont pas besoin de la base.
type View struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func New(client *redis.Client, prefix string) *View {
	if prefix == "" {
		prefix = "livewatch_live"
	}
	return &View{Client: client, Prefix: prefix, TTL: DefaultTTL}
}

func (v *View) KeyForPlatform(p domain.Platform) string {
	// {...} garde un slot de hash stable en Redis Cluster.
	return fmt.Sprintf("%s:{%s}", v.Prefix, p)
}

func (v *View) Put(ctx context.Context, acct domain.PlatformAccount, s domain.LiveSession) error {
	if v == nil || v.Client == nil {
		return fmt.Errorf("nil redis client")
	}
	b, err := json.Marshal(Entry{
		AccountID:    acct.ID,
		Platform:     string(acct.Platform),
		Username:     acct.QueryName(),
		SessionID:    s.ID,
		StartedAt:    s.StartedAt,
		Title:        s.Title,
		Category:     s.Category,
		ViewerCount:  s.ViewerCount,
		StreamURL:    s.StreamURL,
		ThumbnailURL: s.ThumbnailURL,
		UpdatedAt:    s.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal live entry %s: %w", acct.ID, err)
	}

	key := v.KeyForPlatform(acct.Platform)
	pipe := v.Client.Pipeline()
	pipe.HSet(ctx, key, acct.ID, string(b))
	// Chaque écriture rafraîchit le TTL: un poller arrêté ne laisse pas de live fantôme.
	pipe.Expire(ctx, key, v.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec %s: %w", key, err)
	}
	return nil
}

func (v *View) Remove(ctx context.Context, acct domain.PlatformAccount) error {
	if v == nil || v.Client == nil {
		return fmt.Errorf("nil redis client")
	}
	key := v.KeyForPlatform(acct.Platform)
	if err := v.Client.HDel(ctx, key, acct.ID).Err(); err != nil {
		return fmt.Errorf("redis HDEL %s: %w", key, err)
	}
	return nil
}

// List renvoie les entrées live d'une plateforme.
func (v *View) List(ctx context.Context, p domain.Platform) ([]Entry, error) {
	key := v.KeyForPlatform(p)
	m, err := v.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", key, err)
	}
	out := make([]Entry, 0, len(m))
	for field, raw := range m {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode live entry %s: %w", field, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (v *View) ttl() time.Duration {
	if v.TTL <= 0 {
		return DefaultTTL
	}
	return v.TTL
}
