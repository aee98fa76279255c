package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

const kickAPIBaseURL = "https://kick.com/api/v2"

type KickConfig struct {
	APIBaseURL  string
	Concurrency int
	// Pause entre deux lots de requêtes (250ms par défaut, négatif = aucune).
	ChunkDelay time.Duration
}

// Kick n'a pas d'endpoint par lot: une requête par chaîne (slug).
type Kick struct {
	cfg    KickConfig
	http   fetcher
	logger zerolog.Logger
}

func NewKick(cfg KickConfig, client *http.Client, logger zerolog.Logger) *Kick {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = kickAPIBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	switch {
	case cfg.ChunkDelay == 0:
		cfg.ChunkDelay = 250 * time.Millisecond
	case cfg.ChunkDelay < 0:
		cfg.ChunkDelay = 0
	}
	return &Kick{
		cfg:    cfg,
		http:   newFetcher(client),
		logger: logger.With().Str("platform", string(domain.PlatformKick)).Logger(),
	}
}

func (k *Kick) Platform() domain.Platform { return domain.PlatformKick }

func (k *Kick) Fetch(ctx context.Context, accounts []domain.PlatformAccount) ports.FetchResult {
	fr := ports.NewFetchResult()
	var mu sync.Mutex

	parts := chunk(accounts, k.cfg.Concurrency)
	for i, part := range parts {
		if i > 0 && k.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				markAll(&fr, flatten(parts[i:]), &ports.FetchError{Code: ports.CodeNetwork, Message: "run aborted", Err: ctx.Err()})
				return fr
			case <-time.After(k.cfg.ChunkDelay):
			}
		}

		var g errgroup.Group
		for _, acct := range part {
			g.Go(func() error {
				snap, err := k.channel(ctx, acct)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if !hasCode(err, ports.CodeNotFound) {
						k.logger.Warn().Err(err).Str("slug", kickSlug(acct)).Msg("fetch_failed")
					}
					markAll(&fr, []domain.PlatformAccount{acct}, err)
					return nil
				}
				fr.Snapshots[snap.PlatformUserID] = snap
				return nil
			})
		}
		_ = g.Wait()
	}
	return fr
}

type kickChannel struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`

	Livestream *struct {
		SessionTitle string `json:"session_title"`
		IsLive       *bool  `json:"is_live"`
		ViewerCount  *int64 `json:"viewer_count"`
		CreatedAt    string `json:"created_at"`
		StartTime    string `json:"start_time"`
		Thumbnail    *struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
		Categories []struct {
			Name string `json:"name"`
		} `json:"categories"`
	} `json:"livestream"`
}

func (k *Kick) channel(ctx context.Context, acct domain.PlatformAccount) (domain.Snapshot, error) {
	slug := kickSlug(acct)
	var raw json.RawMessage
	if err := k.http.getJSON(ctx, k.cfg.APIBaseURL+"/channels/"+url.PathEscape(slug), nil, &raw); err != nil {
		return domain.Snapshot{}, err
	}
	var ch kickChannel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return domain.Snapshot{}, &ports.FetchError{Code: ports.CodeDecode, Message: "decode channel", Err: err}
	}

	id := strconv.FormatInt(ch.ID, 10)
	if acct.PlatformUserID != "" && acct.PlatformUserID != id {
		return domain.Snapshot{}, &ports.FetchError{
			Code:    ports.CodeIDMismatch,
			Message: "channel " + slug + " has id " + id + ", account expects " + acct.PlatformUserID,
		}
	}

	ls := ch.Livestream
	if ls == nil || (ls.IsLive != nil && !*ls.IsLive) {
		snap := domain.OfflineSnapshot(id)
		snap.Raw = raw
		return snap, nil
	}

	snap := domain.Snapshot{
		PlatformUserID: id,
		IsLive:         true,
		StartedAt:      parseKickTime(ls.StartTime),
		Title:          ls.SessionTitle,
		ViewerCount:    ls.ViewerCount,
		StreamURL:      "https://kick.com/" + ch.Slug,
		Raw:            raw,
	}
	if snap.StartedAt == nil {
		snap.StartedAt = parseKickTime(ls.CreatedAt)
	}
	if ls.Thumbnail != nil {
		snap.ThumbnailURL = ls.Thumbnail.URL
	}
	if len(ls.Categories) > 0 {
		snap.Category = ls.Categories[0].Name
	}
	return snap, nil
}

func kickSlug(acct domain.PlatformAccount) string {
	if s := strings.TrimSpace(acct.PlatformUsername); s != "" {
		return strings.ToLower(s)
	}
	return acct.PlatformUserID
}

// Kick renvoie "2006-01-02 15:04:05" (UTC) ou du RFC3339 selon les champs.
func parseKickTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t := parseTimePtr(s); t != nil {
		return t
	}
	t, err := time.ParseInLocation(time.DateTime, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func flatten[T any](parts [][]T) []T {
	var out []T
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
