package platforms

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenSource obtient un nouveau jeton auprès du fournisseur.
type TokenSource func(ctx context.Context) (Token, error)

// TokenCache garde un jeton bearer jusqu'à expiration (moins une marge).
// Les appelants concurrents partagent un seul rafraîchissement en vol.
type TokenCache struct {
	source TokenSource
	margin time.Duration
	now    func() time.Time

	mu    sync.Mutex
	token Token
	group singleflight.Group
}

func NewTokenCache(source TokenSource, margin time.Duration, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	if margin < 0 {
		margin = 0
	}
	return &TokenCache{source: source, margin: margin, now: now}
}

func (c *TokenCache) Get(ctx context.Context) (string, error) {
	if v, ok := c.cached(); ok {
		return v, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		if v, ok := c.cached(); ok {
			return v, nil
		}
		// Le refresh survit à l'annulation de l'appelant qui l'a déclenché.
		tok, err := c.source(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
		return tok.Value, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// Invalidate oublie le jeton courant (ex: réponse 401).
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Value == "" {
		return "", false
	}
	if !c.now().Add(c.margin).Before(c.token.ExpiresAt) {
		return "", false
	}
	return c.token.Value, true
}
