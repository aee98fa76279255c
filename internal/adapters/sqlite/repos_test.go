package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createAccount(t *testing.T, repo *AccountsRepository, platform domain.Platform, userID string, next time.Time) domain.PlatformAccount {
	t.Helper()
	now := time.Now().UTC()
	a, err := repo.Create(context.Background(), domain.PlatformAccount{
		ID:             xid.New().String(),
		Platform:       platform,
		PlatformUserID: userID,
		IsEnabled:      true,
		NextCheckAt:    next,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
	return a
}

func TestAccountsRepository_DueFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAccountsRepository(db.SQL)
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	oldest := createAccount(t, repo, domain.PlatformTwitch, "1", now.Add(-10*time.Minute))
	recent := createAccount(t, repo, domain.PlatformTwitch, "2", now.Add(-time.Minute))
	createAccount(t, repo, domain.PlatformTwitch, "3", now.Add(time.Minute))
	disabled := createAccount(t, repo, domain.PlatformKick, "4", now.Add(-time.Hour))
	_, err := repo.SetEnabled(ctx, disabled.ID, false)
	require.NoError(t, err)

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, oldest.ID, due[0].ID)
	require.Equal(t, recent.ID, due[1].ID)

	capped, err := repo.Due(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	require.Equal(t, oldest.ID, capped[0].ID)
}

func TestAccountsRepository_DuplicateIsConflict(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountsRepository(db.SQL)
	createAccount(t, repo, domain.PlatformTwitch, "dup", time.Now())

	_, err := repo.Create(context.Background(), domain.PlatformAccount{
		ID:             xid.New().String(),
		Platform:       domain.PlatformTwitch,
		PlatformUserID: "dup",
		NextCheckAt:    time.Now(),
	})
	require.ErrorIs(t, err, ports.ErrConflict)
}

func TestAccountsRepository_ScheduleNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAccountsRepository(db.SQL)
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	a := createAccount(t, repo, domain.PlatformYouTube, "UC1", now)

	require.NoError(t, repo.UpdateSchedule(ctx, a.ID, now, now.Add(90*time.Second)))
	require.NoError(t, repo.UpdateSchedule(ctx, a.ID, now, now.Add(30*time.Second)))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.NextCheckAt.Equal(now.Add(90*time.Second)), "next check went backwards: %s", got.NextCheckAt)
	require.True(t, got.LastCheckedAt.Equal(now))

	require.ErrorIs(t, repo.UpdateSchedule(ctx, "missing", now, now), ports.ErrNotFound)
}

func TestSessionsRepository_SingleOpenSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountsRepository(db.SQL)
	sessions := NewSessionsRepository(db.SQL)
	a := createAccount(t, accounts, domain.PlatformTwitch, "x", time.Now())
	now := time.Now().UTC()

	viewers := int64(42)
	first, err := sessions.Insert(ctx, domain.LiveSession{
		ID: xid.New().String(), PlatformAccountID: a.ID, IsLive: true,
		StartedAt: now, Title: "Test Stream", ViewerCount: &viewers,
		Raw: []byte(`{"a":1}`), CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = sessions.Insert(ctx, domain.LiveSession{
		ID: xid.New().String(), PlatformAccountID: a.ID, IsLive: true,
		StartedAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, ports.ErrConflict)

	open, err := sessions.FindOpen(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, open.ID)
	require.Equal(t, "Test Stream", open.Title)
	require.NotNil(t, open.ViewerCount)
	require.EqualValues(t, 42, *open.ViewerCount)
	require.JSONEq(t, `{"a":1}`, string(open.Raw))

	more := int64(50)
	require.NoError(t, sessions.Update(ctx, open.ID, domain.SessionUpdate{Title: "renamed", ViewerCount: &more, UpdatedAt: now.Add(time.Minute)}))

	require.NoError(t, sessions.Close(ctx, open.ID, now.Add(time.Hour)))
	require.ErrorIs(t, sessions.Close(ctx, open.ID, now.Add(2*time.Hour)), ports.ErrNotFound)
	require.ErrorIs(t, sessions.Update(ctx, open.ID, domain.SessionUpdate{UpdatedAt: now}), ports.ErrNotFound)

	_, err = sessions.FindOpen(ctx, a.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	// Une nouvelle session peut s'ouvrir une fois la précédente fermée.
	_, err = sessions.Insert(ctx, domain.LiveSession{
		ID: xid.New().String(), PlatformAccountID: a.ID, IsLive: true,
		StartedAt: now.Add(3 * time.Hour), CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	all, err := sessions.ListByAccount(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	closed := all[1]
	require.False(t, closed.IsLive)
	require.NotNil(t, closed.EndedAt)
	require.True(t, closed.EndedAt.Equal(now.Add(time.Hour)))
	require.Equal(t, "renamed", closed.Title)

	openList, err := sessions.ListOpen(ctx, 10)
	require.NoError(t, err)
	require.Len(t, openList, 1)
}

func TestSessionsRepository_ConcurrentInsertOneWins(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountsRepository(db.SQL)
	sessions := NewSessionsRepository(db.SQL)
	a := createAccount(t, accounts, domain.PlatformKick, "7", time.Now())
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sessions.Insert(ctx, domain.LiveSession{
				ID: xid.New().String(), PlatformAccountID: a.ID, IsLive: true,
				StartedAt: now, CreatedAt: now, UpdatedAt: now,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ports.ErrConflict)
	}
	require.Equal(t, 1, ok)
}

func TestStatusEventsRepository_AppendOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountsRepository(db.SQL)
	events := NewStatusEventsRepository(db.SQL)
	a := createAccount(t, accounts, domain.PlatformTwitch, "x", time.Now())
	now := time.Now().UTC()

	_, err := events.Insert(ctx, a.ID, domain.EventWentLive, []byte(`{"is_live":true}`), now)
	require.NoError(t, err)
	_, err = events.Insert(ctx, a.ID, domain.EventWentOffline, nil, now.Add(time.Minute))
	require.NoError(t, err)

	got, err := events.ListByAccount(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.EventWentLive, got[0].Type)
	require.Equal(t, domain.EventWentOffline, got[1].Type)
	require.JSONEq(t, `{}`, string(got[1].Payload))
}

func TestStatusEventsRepository_Latest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountsRepository(db.SQL)
	events := NewStatusEventsRepository(db.SQL)
	a := createAccount(t, accounts, domain.PlatformKick, "k", time.Now())
	now := time.Now().UTC()

	_, err := events.Latest(ctx, a.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	_, err = events.Insert(ctx, a.ID, domain.EventWentLive, nil, now)
	require.NoError(t, err)
	_, err = events.Insert(ctx, a.ID, domain.EventWentOffline, nil, now.Add(time.Minute))
	require.NoError(t, err)

	last, err := events.Latest(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EventWentOffline, last.Type)
}

func TestSettingsRepository_DefaultsAndPersist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSettingsRepository(db.SQL)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultPollSettings(), got)

	updated, err := repo.Put(ctx, domain.PollSettings{BatchSize: 50, AccountConcurrency: 1000})
	require.NoError(t, err)
	require.Equal(t, 50, updated.BatchSize)
	require.Equal(t, 64, updated.AccountConcurrency)
}
