package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

var ytNow = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func feedXML(entries map[string]time.Time) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">`)
	for id, ts := range entries {
		fmt.Fprintf(&b, `<entry><yt:videoId>%s</yt:videoId><published>%s</published></entry>`, id, ts.Format(time.RFC3339))
	}
	b.WriteString(`</feed>`)
	return b.String()
}

type ytServer struct {
	srv         *httptest.Server
	videoCalls  int32
	feeds       map[string]string
	videosReply func(ids string) (int, string)
}

func newYTServer(t *testing.T) *ytServer {
	t.Helper()
	s := &ytServer{feeds: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/feeds/videos.xml", func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.feeds[r.URL.Query().Get("channel_id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.videoCalls, 1)
		status, body := s.videosReply(r.URL.Query().Get("id"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *ytServer) adapter(apiKey string) *YouTube {
	return NewYouTube(YouTubeConfig{
		APIKey:     apiKey,
		FeedURL:    s.srv.URL + "/feeds/videos.xml",
		APIBaseURL: s.srv.URL + "/v3",
		Now:        func() time.Time { return ytNow },
	}, s.srv.Client(), zerolog.Nop())
}

func TestYouTube_StaleFeedsSpendNoQuota(t *testing.T) {
	s := newYTServer(t)
	s.feeds["UCstale"] = feedXML(map[string]time.Time{"old": ytNow.Add(-5 * time.Hour)})
	s.feeds["UCempty"] = feedXML(nil)
	s.videosReply = func(string) (int, string) { return http.StatusOK, `{"items":[]}` }

	fr := s.adapter("key").Fetch(context.Background(), []domain.PlatformAccount{
		{ID: "a", PlatformUserID: "UCstale"},
		{ID: "b", PlatformUserID: "UCempty"},
	})
	if len(fr.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", fr.Errors)
	}
	for _, id := range []string{"UCstale", "UCempty"} {
		if s, ok := fr.Snapshots[id]; !ok || s.IsLive {
			t.Fatalf("%s should be offline, got %+v", id, fr.Snapshots)
		}
	}
	if n := atomic.LoadInt32(&s.videoCalls); n != 0 {
		t.Fatalf("videos.list should not be called, got %d", n)
	}
}

func TestYouTube_LiveCandidate(t *testing.T) {
	s := newYTServer(t)
	s.feeds["UClive"] = feedXML(map[string]time.Time{"v1": ytNow.Add(-30 * time.Minute)})
	s.feeds["UCended"] = feedXML(map[string]time.Time{"v2": ytNow.Add(-time.Hour)})
	s.videosReply = func(ids string) (int, string) {
		return http.StatusOK, `{"items":[
			{"id":"v1","snippet":{"title":"Test Stream","channelId":"UClive","thumbnails":{"high":{"url":"https://i/high.jpg"}}},
			 "liveStreamingDetails":{"actualStartTime":"2026-05-01T19:35:00Z","concurrentViewers":"42"}},
			{"id":"v2","snippet":{"title":"done","channelId":"UCended"},
			 "liveStreamingDetails":{"actualStartTime":"2026-05-01T18:00:00Z","actualEndTime":"2026-05-01T19:00:00Z"}}
		]}`
	}

	fr := s.adapter("key").Fetch(context.Background(), []domain.PlatformAccount{
		{ID: "a", PlatformUserID: "UClive"},
		{ID: "b", PlatformUserID: "UCended"},
	})
	if len(fr.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", fr.Errors)
	}
	live := fr.Snapshots["UClive"]
	if !live.IsLive || live.Title != "Test Stream" || live.ViewerCount == nil || *live.ViewerCount != 42 {
		t.Fatalf("unexpected live snapshot: %+v", live)
	}
	if live.StreamURL != "https://www.youtube.com/watch?v=v1" || live.ThumbnailURL != "https://i/high.jpg" {
		t.Fatalf("unexpected urls: %q %q", live.StreamURL, live.ThumbnailURL)
	}
	if ended := fr.Snapshots["UCended"]; ended.IsLive {
		t.Fatalf("ended broadcast must be offline")
	}
	if n := atomic.LoadInt32(&s.videoCalls); n != 1 {
		t.Fatalf("want a single videos.list call, got %d", n)
	}
}

func TestYouTube_MissingKeyOnlyAffectsCandidates(t *testing.T) {
	s := newYTServer(t)
	s.feeds["UCfresh"] = feedXML(map[string]time.Time{"v1": ytNow.Add(-time.Minute)})
	s.feeds["UCstale"] = feedXML(map[string]time.Time{"v0": ytNow.Add(-24 * time.Hour)})

	fr := s.adapter("").Fetch(context.Background(), []domain.PlatformAccount{
		{ID: "a", PlatformUserID: "UCfresh"},
		{ID: "b", PlatformUserID: "UCstale"},
	})
	if len(fr.Errors) != 1 || fr.Errors[0].AccountID != "a" || !hasCode(fr.Errors[0].Err, ports.CodeMissingCredentials) {
		t.Fatalf("want missing_credentials for the candidate only, got %+v", fr.Errors)
	}
	if snap, ok := fr.Snapshots["UCstale"]; !ok || snap.IsLive {
		t.Fatalf("stale channel should still be offline")
	}
}

func TestYouTube_FailedChunkAndBrokenFeedAreErrors(t *testing.T) {
	s := newYTServer(t)
	s.feeds["UCfresh"] = feedXML(map[string]time.Time{"v1": ytNow.Add(-time.Minute)})
	s.videosReply = func(string) (int, string) { return http.StatusForbidden, `{"error":{"message":"quotaExceeded"}}` }

	fr := s.adapter("key").Fetch(context.Background(), []domain.PlatformAccount{
		{ID: "a", PlatformUserID: "UCfresh"},
		{ID: "b", PlatformUserID: "UCmissing"},
	})
	if len(fr.Errors) != 2 {
		t.Fatalf("want 2 errors, got %+v", fr.Errors)
	}
	if len(fr.Snapshots) != 0 {
		t.Fatalf("no snapshot expected, got %+v", fr.Snapshots)
	}
}

func TestYouTube_FailedVideosChunkOnlyMarksItsChannels(t *testing.T) {
	s := newYTServer(t)
	accounts := make([]domain.PlatformAccount, 0, 60)
	for i := 0; i < 60; i++ {
		ch := fmt.Sprintf("UC%d", i)
		s.feeds[ch] = feedXML(map[string]time.Time{fmt.Sprintf("v%d", i): ytNow.Add(-10 * time.Minute)})
		accounts = append(accounts, domain.PlatformAccount{ID: fmt.Sprintf("a%d", i), Platform: domain.PlatformYouTube, PlatformUserID: ch})
	}

	var (
		mu        sync.Mutex
		failedIDs []string
	)
	s.videosReply = func(ids string) (int, string) {
		part := strings.Split(ids, ",")
		if len(part) > 50 {
			t.Errorf("at most 50 ids per videos.list call, got %d", len(part))
		}
		for _, id := range part {
			if id == "v0" {
				mu.Lock()
				failedIDs = append(failedIDs, part...)
				mu.Unlock()
				return http.StatusInternalServerError, `{"error":{"message":"backendError"}}`
			}
		}
		items := make([]string, 0, len(part))
		for _, id := range part {
			items = append(items, fmt.Sprintf(`{"id":%q,"snippet":{"title":"t","channelId":"UC%s"},"liveStreamingDetails":{"actualStartTime":"2026-05-01T19:50:00Z"}}`, id, strings.TrimPrefix(id, "v")))
		}
		return http.StatusOK, `{"items":[` + strings.Join(items, ",") + `]}`
	}

	fr := s.adapter("key").Fetch(context.Background(), accounts)

	if n := atomic.LoadInt32(&s.videoCalls); n != 2 {
		t.Fatalf("want 2 videos.list calls for 60 videos, got %d", n)
	}
	failedChannels := map[string]bool{}
	for _, id := range failedIDs {
		failedChannels["UC"+strings.TrimPrefix(id, "v")] = true
	}
	if len(fr.Errors) != len(failedChannels) || len(failedChannels) == 0 {
		t.Fatalf("want %d errors for the failed chunk, got %d", len(failedChannels), len(fr.Errors))
	}
	for _, e := range fr.Errors {
		if !failedChannels[e.PlatformUserID] || !hasCode(e.Err, ports.CodeHTTPStatus) {
			t.Fatalf("unexpected error for %s: %v", e.PlatformUserID, e.Err)
		}
	}
	for _, a := range accounts {
		if failedChannels[a.PlatformUserID] {
			continue
		}
		if snap, ok := fr.Snapshots[a.PlatformUserID]; !ok || !snap.IsLive {
			t.Fatalf("%s from the successful chunk should be live, got %+v", a.PlatformUserID, snap)
		}
	}
}
