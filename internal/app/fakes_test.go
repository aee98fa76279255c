package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
	"github.com/rs/xid"
)

// memStore implémente les trois repositories en mémoire, avec la même
// contrainte "une seule session ouverte par compte" que les stores SQL.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]domain.PlatformAccount
	sessions map[string]domain.LiveSession

	sessionInserts int
	// afterFindOpen est appelé hors verrou après chaque FindOpen (tests de course).
	afterFindOpen func()
	// failUpdateSchedule force une erreur de persistance pour ce compte.
	failUpdateSchedule map[string]bool
	// conflictThenClosed simule une session ouverte puis refermée par d'autres
	// passages entre l'Insert et la relecture.
	conflictThenClosed bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:           map[string]domain.PlatformAccount{},
		sessions:           map[string]domain.LiveSession{},
		failUpdateSchedule: map[string]bool{},
	}
}

func (m *memStore) addAccount(a domain.PlatformAccount) domain.PlatformAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = xid.New().String()
	}
	m.accounts[a.ID] = a
	return a
}

func (m *memStore) Create(ctx context.Context, a domain.PlatformAccount) (domain.PlatformAccount, error) {
	return m.addAccount(a), nil
}

func (m *memStore) Get(ctx context.Context, id string) (domain.PlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.PlatformAccount{}, ports.ErrNotFound
	}
	return a, nil
}

func (m *memStore) List(ctx context.Context, limit int) ([]domain.PlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PlatformAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SetEnabled(ctx context.Context, id string, enabled bool) (domain.PlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.PlatformAccount{}, ports.ErrNotFound
	}
	a.IsEnabled = enabled
	m.accounts[id] = a
	return a, nil
}

func (m *memStore) Due(ctx context.Context, now time.Time, limit int) ([]domain.PlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PlatformAccount{}
	for _, a := range m.accounts {
		if a.IsEnabled && !a.NextCheckAt.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextCheckAt.Equal(out[j].NextCheckAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextCheckAt.Before(out[j].NextCheckAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateSchedule(ctx context.Context, id string, lastCheckedAt, nextCheckAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateSchedule[id] {
		return errors.New("disk on fire")
	}
	a, ok := m.accounts[id]
	if !ok {
		return ports.ErrNotFound
	}
	a.LastCheckedAt = lastCheckedAt
	if nextCheckAt.After(a.NextCheckAt) {
		a.NextCheckAt = nextCheckAt
	}
	m.accounts[id] = a
	return nil
}

func (m *memStore) FindOpen(ctx context.Context, accountID string) (domain.LiveSession, error) {
	m.mu.Lock()
	var found *domain.LiveSession
	for _, s := range m.sessions {
		if s.PlatformAccountID == accountID && s.EndedAt == nil {
			s := s
			found = &s
			break
		}
	}
	hook := m.afterFindOpen
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if found == nil {
		return domain.LiveSession{}, ports.ErrNotFound
	}
	return *found, nil
}

func (m *memStore) Insert(ctx context.Context, s domain.LiveSession) (domain.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionInserts++
	if m.conflictThenClosed {
		return domain.LiveSession{}, ports.ErrConflict
	}
	for _, existing := range m.sessions {
		if existing.PlatformAccountID == s.PlatformAccountID && existing.EndedAt == nil {
			return domain.LiveSession{}, ports.ErrConflict
		}
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) Update(ctx context.Context, id string, upd domain.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return ports.ErrNotFound
	}
	s.Title = upd.Title
	s.ViewerCount = upd.ViewerCount
	s.UpdatedAt = upd.UpdatedAt
	m.sessions[id] = s
	return nil
}

func (m *memStore) Close(ctx context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return ports.ErrNotFound
	}
	s.IsLive = false
	s.EndedAt = &endedAt
	m.sessions[id] = s
	return nil
}

func (m *memStore) ListOpen(ctx context.Context, limit int) ([]domain.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.LiveSession{}
	for _, s := range m.sessions {
		if s.EndedAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.LiveSession, error) {
	return m.sessionsFor(accountID), nil
}

func (m *memStore) sessionsFor(accountID string) []domain.LiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.LiveSession{}
	for _, s := range m.sessions {
		if s.PlatformAccountID == accountID {
			out = append(out, s)
		}
	}
	return out
}

func (m *memStore) openSessionsFor(accountID string) int {
	n := 0
	for _, s := range m.sessionsFor(accountID) {
		if s.EndedAt == nil {
			n++
		}
	}
	return n
}

func (m *memStore) account(id string) domain.PlatformAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

func (m *memStore) inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionInserts
}

// memEvents implémente StatusEventRepository.
type memEvents struct {
	mu     sync.Mutex
	events []domain.StatusEvent
	// failInserts fait échouer les n prochains Insert.
	failInserts int
}

func (e *memEvents) Insert(ctx context.Context, accountID string, typ domain.StatusEventType, payload json.RawMessage, at time.Time) (domain.StatusEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failInserts > 0 {
		e.failInserts--
		return domain.StatusEvent{}, errors.New("events table locked")
	}
	evt := domain.StatusEvent{ID: xid.New().String(), PlatformAccountID: accountID, Type: typ, Payload: payload, CreatedAt: at}
	e.events = append(e.events, evt)
	return evt, nil
}

func (e *memEvents) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.StatusEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []domain.StatusEvent{}
	for _, evt := range e.events {
		if evt.PlatformAccountID == accountID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (e *memEvents) Latest(ctx context.Context, accountID string) (domain.StatusEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].PlatformAccountID == accountID {
			return e.events[i], nil
		}
	}
	return domain.StatusEvent{}, ports.ErrNotFound
}

func (e *memEvents) types(accountID string) []domain.StatusEventType {
	evts, _ := e.ListByAccount(context.Background(), accountID, 0)
	out := make([]domain.StatusEventType, 0, len(evts))
	for _, evt := range evts {
		out = append(out, evt.Type)
	}
	return out
}

// fakeAdapter renvoie un résultat préparé et compte les appels.
type fakeAdapter struct {
	platform domain.Platform

	mu     sync.Mutex
	calls  int
	result func(accounts []domain.PlatformAccount) ports.FetchResult
}

func (f *fakeAdapter) Platform() domain.Platform { return f.platform }

func (f *fakeAdapter) Fetch(ctx context.Context, accounts []domain.PlatformAccount) ports.FetchResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.result == nil {
		return ports.NewFetchResult()
	}
	return f.result(accounts)
}

// memView enregistre les projections "live".
type memView struct {
	mu   sync.Mutex
	live map[string]domain.LiveSession
}

func newMemView() *memView { return &memView{live: map[string]domain.LiveSession{}} }

func (v *memView) Put(ctx context.Context, acct domain.PlatformAccount, s domain.LiveSession) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.live[acct.ID] = s
	return nil
}

func (v *memView) Remove(ctx context.Context, acct domain.PlatformAccount) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.live, acct.ID)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }
