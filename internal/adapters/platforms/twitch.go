package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

const (
	twitchTokenURL   = "https://id.twitch.tv/oauth2/token"
	twitchAPIBaseURL = "https://api.twitch.tv/helix"
	twitchChunkSize  = 100
)

type TwitchConfig struct {
	ClientID     string
	ClientSecret string

	// Surchargeables pour les tests.
	TokenURL   string
	APIBaseURL string

	Concurrency int
	TokenMargin time.Duration
	Now         func() time.Time
}

// Twitch interroge Helix /streams par lots de 100 identifiants.
type Twitch struct {
	cfg    TwitchConfig
	http   fetcher
	tokens *TokenCache
	logger zerolog.Logger
}

func NewTwitch(cfg TwitchConfig, client *http.Client, logger zerolog.Logger) *Twitch {
	if cfg.TokenURL == "" {
		cfg.TokenURL = twitchTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = twitchAPIBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.TokenMargin <= 0 {
		cfg.TokenMargin = 60 * time.Second
	}
	t := &Twitch{
		cfg:    cfg,
		http:   newFetcher(client),
		logger: logger.With().Str("platform", string(domain.PlatformTwitch)).Logger(),
	}
	t.tokens = NewTokenCache(t.requestToken, cfg.TokenMargin, cfg.Now)
	return t
}

func (t *Twitch) Platform() domain.Platform { return domain.PlatformTwitch }

func (t *Twitch) Fetch(ctx context.Context, accounts []domain.PlatformAccount) ports.FetchResult {
	fr := ports.NewFetchResult()
	if len(accounts) == 0 {
		return fr
	}
	if t.cfg.ClientID == "" || t.cfg.ClientSecret == "" {
		markAll(&fr, accounts, &ports.FetchError{Code: ports.CodeMissingCredentials, Message: "TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET not set"})
		return fr
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(t.cfg.Concurrency)
	for _, part := range chunk(accounts, twitchChunkSize) {
		g.Go(func() error {
			snaps, err := t.fetchChunk(ctx, part)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.logger.Warn().Err(err).Int("accounts", len(part)).Msg("fetch_failed")
				markAll(&fr, part, err)
				return nil
			}
			for id, s := range snaps {
				fr.Snapshots[id] = s
			}
			return nil
		})
	}
	_ = g.Wait()
	return fr
}

// fetchChunk rejoue une fois la requête si Helix répond 401 (jeton révoqué).
// Un refus de l'endpoint de jeton (token_error) n'est jamais rejoué.
func (t *Twitch) fetchChunk(ctx context.Context, accounts []domain.PlatformAccount) (map[string]domain.Snapshot, error) {
	snaps, err := t.streams(ctx, accounts)
	if err != nil && hasCode(err, ports.CodeAuth) {
		t.tokens.Invalidate()
		snaps, err = t.streams(ctx, accounts)
	}
	return snaps, err
}

type twitchStream struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserLogin    string `json:"user_login"`
	UserName     string `json:"user_name"`
	GameName     string `json:"game_name"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	ViewerCount  int64  `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (t *Twitch) streams(ctx context.Context, accounts []domain.PlatformAccount) (map[string]domain.Snapshot, error) {
	token, err := t.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(t.cfg.APIBaseURL + "/streams")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	seen := map[string]bool{}
	for _, a := range accounts {
		if a.PlatformUserID == "" || seen[a.PlatformUserID] {
			continue
		}
		seen[a.PlatformUserID] = true
		q.Add("user_id", a.PlatformUserID)
	}
	q.Set("first", "100")
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Client-Id", t.cfg.ClientID)
	header.Set("Authorization", "Bearer "+token)

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := t.http.getJSON(ctx, u.String(), header, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]domain.Snapshot, len(resp.Data))
	for _, raw := range resp.Data {
		var s twitchStream
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ports.FetchError{Code: ports.CodeDecode, Message: "decode stream", Err: err}
		}
		if s.UserID == "" || (s.Type != "" && s.Type != "live") {
			continue
		}
		viewers := s.ViewerCount
		out[s.UserID] = domain.Snapshot{
			PlatformUserID: s.UserID,
			IsLive:         true,
			StartedAt:      parseTimePtr(s.StartedAt),
			Title:          s.Title,
			Category:       s.GameName,
			ViewerCount:    &viewers,
			StreamURL:      "https://www.twitch.tv/" + s.UserLogin,
			ThumbnailURL:   twitchThumbnail(s.ThumbnailURL),
			Raw:            raw,
		}
	}
	return out, nil
}

func twitchThumbnail(tmpl string) string {
	r := strings.NewReplacer("{width}", "1280", "{height}", "720")
	return r.Replace(tmpl)
}

func (t *Twitch) requestToken(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("client_id", t.cfg.ClientID)
	form.Set("client_secret", t.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := t.http.do(req)
	if err != nil {
		if hasCode(err, ports.CodeHTTPStatus) || hasCode(err, ports.CodeNotFound) || hasCode(err, ports.CodeAuth) {
			return Token{}, &ports.FetchError{Code: ports.CodeTokenRejected, Message: "token request rejected", Err: err}
		}
		return Token{}, err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Token{}, &ports.FetchError{Code: ports.CodeDecode, Message: "decode token", Err: err}
	}
	if resp.AccessToken == "" {
		return Token{}, &ports.FetchError{Code: ports.CodeTokenRejected, Message: "empty access token"}
	}

	now := time.Now
	if t.cfg.Now != nil {
		now = t.cfg.Now
	}
	return Token{
		Value:     resp.AccessToken,
		ExpiresAt: now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
