package redislive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

func TestView_PutListRemove(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	view := New(client, "test_live")
	acct := domain.PlatformAccount{ID: "acc1", Platform: domain.PlatformTwitch, PlatformUserID: "42", PlatformUsername: "alice"}
	viewers := int64(42)
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	require.NoError(t, view.Put(ctx, acct, domain.LiveSession{
		ID: "s1", PlatformAccountID: acct.ID, IsLive: true, StartedAt: now,
		Title: "Test Stream", ViewerCount: &viewers, UpdatedAt: now,
	}))

	key := view.KeyForPlatform(domain.PlatformTwitch)
	require.Equal(t, "test_live:{twitch}", key)
	require.True(t, mr.Exists(key))
	require.Greater(t, mr.TTL(key), time.Duration(0))

	entries, err := view.List(ctx, domain.PlatformTwitch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s1", entries[0].SessionID)
	require.Equal(t, "alice", entries[0].Username)
	require.NotNil(t, entries[0].ViewerCount)
	require.EqualValues(t, 42, *entries[0].ViewerCount)

	require.NoError(t, view.Remove(ctx, acct))
	entries, err = view.List(ctx, domain.PlatformTwitch)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Supprimer un compte absent n'est pas une erreur.
	require.NoError(t, view.Remove(ctx, acct))
}
