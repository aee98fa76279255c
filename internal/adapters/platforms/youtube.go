package platforms

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

const (
	youtubeFeedURL       = "https://www.youtube.com/feeds/videos.xml"
	youtubeAPIBaseURL    = "https://www.googleapis.com/youtube/v3"
	youtubeVideosPerCall = 50
)

type YouTubeConfig struct {
	APIKey string

	FeedURL    string
	APIBaseURL string

	FeedConcurrency int
	// Une chaîne dont la dernière vidéo est plus vieille est hors ligne
	// sans consommer de quota.
	FreshnessWindow time.Duration
	MaxCandidates   int
	Now             func() time.Time
}

// YouTube vérifie d'abord le flux RSS public de chaque chaîne, puis ne
// dépense du quota (videos.list) que pour les vidéos récentes.
type YouTube struct {
	cfg    YouTubeConfig
	http   fetcher
	logger zerolog.Logger
}

func NewYouTube(cfg YouTubeConfig, client *http.Client, logger zerolog.Logger) *YouTube {
	if cfg.FeedURL == "" {
		cfg.FeedURL = youtubeFeedURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = youtubeAPIBaseURL
	}
	if cfg.FeedConcurrency <= 0 {
		cfg.FeedConcurrency = 10
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 3 * time.Hour
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &YouTube{
		cfg:    cfg,
		http:   newFetcher(client),
		logger: logger.With().Str("platform", string(domain.PlatformYouTube)).Logger(),
	}
}

func (y *YouTube) Platform() domain.Platform { return domain.PlatformYouTube }

func (y *YouTube) Fetch(ctx context.Context, accounts []domain.PlatformAccount) ports.FetchResult {
	fr := ports.NewFetchResult()
	if len(accounts) == 0 {
		return fr
	}

	candidates := y.scanFeeds(ctx, accounts, &fr)
	if len(candidates) == 0 {
		return fr
	}

	if y.cfg.APIKey == "" {
		err := &ports.FetchError{Code: ports.CodeMissingCredentials, Message: "YOUTUBE_API_KEY not set"}
		for _, c := range candidates {
			markAll(&fr, []domain.PlatformAccount{c.account}, err)
		}
		return fr
	}

	y.checkVideos(ctx, candidates, &fr)
	return fr
}

type feedCandidate struct {
	account  domain.PlatformAccount
	videoIDs []string
}

type youtubeFeed struct {
	Entries []struct {
		VideoID   string `xml:"videoId"`
		Published string `xml:"published"`
	} `xml:"entry"`
}

// scanFeeds renvoie les chaînes ayant publié récemment. Les autres sont
// marquées hors ligne (ou en erreur si le flux est illisible).
func (y *YouTube) scanFeeds(ctx context.Context, accounts []domain.PlatformAccount, fr *ports.FetchResult) []feedCandidate {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out []feedCandidate
	)
	g.SetLimit(y.cfg.FeedConcurrency)
	cutoff := y.cfg.Now().Add(-y.cfg.FreshnessWindow)

	for _, acct := range accounts {
		g.Go(func() error {
			ids, err := y.recentVideos(ctx, acct.PlatformUserID, cutoff)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				y.logger.Warn().Err(err).Str("channel_id", acct.PlatformUserID).Msg("fetch_failed")
				markAll(fr, []domain.PlatformAccount{acct}, err)
			case len(ids) == 0:
				fr.Snapshots[acct.PlatformUserID] = domain.OfflineSnapshot(acct.PlatformUserID)
			default:
				out = append(out, feedCandidate{account: acct, videoIDs: ids})
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (y *YouTube) recentVideos(ctx context.Context, channelID string, cutoff time.Time) ([]string, error) {
	u, err := url.Parse(y.cfg.FeedURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("channel_id", channelID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	body, err := y.http.do(req)
	if err != nil {
		return nil, err
	}

	var feed youtubeFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &ports.FetchError{Code: ports.CodeDecode, Message: "decode feed", Err: err}
	}

	type entry struct {
		id        string
		published time.Time
	}
	entries := make([]entry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		ts := parseTimePtr(e.Published)
		if e.VideoID == "" || ts == nil {
			continue
		}
		entries = append(entries, entry{id: e.VideoID, published: *ts})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].published.After(entries[j].published) })

	var ids []string
	for _, e := range entries {
		if e.published.Before(cutoff) || len(ids) >= y.cfg.MaxCandidates {
			break
		}
		ids = append(ids, e.id)
	}
	return ids, nil
}

type youtubeThumbnail struct {
	URL string `json:"url"`
}

type youtubeVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title      string `json:"title"`
		ChannelID  string `json:"channelId"`
		Thumbnails struct {
			Maxres  youtubeThumbnail `json:"maxres"`
			High    youtubeThumbnail `json:"high"`
			Medium  youtubeThumbnail `json:"medium"`
			Default youtubeThumbnail `json:"default"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	LiveStreamingDetails struct {
		ActualStartTime   string  `json:"actualStartTime"`
		ActualEndTime     string  `json:"actualEndTime"`
		ConcurrentViewers *string `json:"concurrentViewers"`
	} `json:"liveStreamingDetails"`
}

func (v youtubeVideo) live() bool {
	return v.LiveStreamingDetails.ActualStartTime != "" && v.LiveStreamingDetails.ActualEndTime == ""
}

func (v youtubeVideo) thumbnail() string {
	t := v.Snippet.Thumbnails
	switch {
	case t.Maxres.URL != "":
		return t.Maxres.URL
	case t.High.URL != "":
		return t.High.URL
	case t.Medium.URL != "":
		return t.Medium.URL
	}
	return t.Default.URL
}

// checkVideos interroge videos.list par lots de 50. Un lot en échec ne met
// en erreur que les chaînes qu'aucun autre lot n'a vues en live.
func (y *YouTube) checkVideos(ctx context.Context, candidates []feedCandidate, fr *ports.FetchResult) {
	owner := map[string]int{}
	var ids []string
	for i, c := range candidates {
		for _, id := range c.videoIDs {
			if _, dup := owner[id]; dup {
				continue
			}
			owner[id] = i
			ids = append(ids, id)
		}
	}

	live := map[int]domain.Snapshot{}
	failed := map[int]error{}
	calls := 0
	for _, part := range chunk(ids, youtubeVideosPerCall) {
		calls++
		videos, err := y.videos(ctx, part)
		if err != nil {
			y.logger.Warn().Err(err).Int("videos", len(part)).Msg("fetch_failed")
			for _, id := range part {
				failed[owner[id]] = err
			}
			continue
		}
		for _, v := range videos {
			i, ok := owner[v.ID]
			if !ok || !v.live() {
				continue
			}
			if _, already := live[i]; already {
				continue
			}
			live[i] = y.snapshot(candidates[i].account, v)
		}
	}
	y.logger.Debug().Int("quota_units", calls).Int("videos", len(ids)).Msg("youtube quota spent")

	for i, c := range candidates {
		id := c.account.PlatformUserID
		if snap, ok := live[i]; ok {
			fr.Snapshots[id] = snap
			continue
		}
		if err, ok := failed[i]; ok {
			markAll(fr, []domain.PlatformAccount{c.account}, err)
			continue
		}
		fr.Snapshots[id] = domain.OfflineSnapshot(id)
	}
}

func (y *YouTube) videos(ctx context.Context, ids []string) ([]youtubeVideo, error) {
	u, err := url.Parse(y.cfg.APIBaseURL + "/videos")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("part", "snippet,liveStreamingDetails")
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", y.cfg.APIKey)
	u.RawQuery = q.Encode()

	var resp struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := y.http.getJSON(ctx, u.String(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]youtubeVideo, 0, len(resp.Items))
	for _, raw := range resp.Items {
		var v youtubeVideo
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ports.FetchError{Code: ports.CodeDecode, Message: "decode video", Err: err}
		}
		if v.ID != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func (y *YouTube) snapshot(acct domain.PlatformAccount, v youtubeVideo) domain.Snapshot {
	raw, _ := json.Marshal(v)
	return domain.Snapshot{
		PlatformUserID: acct.PlatformUserID,
		IsLive:         true,
		StartedAt:      parseTimePtr(v.LiveStreamingDetails.ActualStartTime),
		Title:          v.Snippet.Title,
		ViewerCount:    parseInt64Ptr(v.LiveStreamingDetails.ConcurrentViewers),
		StreamURL:      "https://www.youtube.com/watch?v=" + v.ID,
		ThumbnailURL:   v.thumbnail(),
		Raw:            raw,
	}
}
