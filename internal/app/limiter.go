package app

import (
	"context"
	"sync"
)

// DynamicLimiter borne le nombre de comptes réconciliés en même temps.
// Le plafond suit PollSettings.AccountConcurrency et peut changer à chaud
// via SetLimit, y compris pendant un passage en cours.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	notify   chan struct{}
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &DynamicLimiter{limit: limit, notify: make(chan struct{})}
}

func (l *DynamicLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *DynamicLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *DynamicLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit == limit {
		return
	}
	l.limit = limit
	l.wakeLocked()
}

// Acquire bloque jusqu'à obtenir une place ou jusqu'à l'annulation de ctx.
func (l *DynamicLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.inFlight < l.limit {
			l.inFlight++
			l.mu.Unlock()
			return nil
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.wakeLocked()
}

// Go lance fn dans une goroutine dès qu'une place est libre.
// Renvoie l'erreur du contexte si aucune place n'a pu être obtenue.
func (l *DynamicLimiter) Go(ctx context.Context, wg *sync.WaitGroup, fn func()) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Release()
		fn()
	}()
	return nil
}

func (l *DynamicLimiter) wakeLocked() {
	close(l.notify)
	l.notify = make(chan struct{})
}
