package app

import (
	"math/rand/v2"
	"sync"
	"time"
)

// BackoffPolicy décrit le délai avant la prochaine vérification d'un compte:
// base +/- jitter uniforme, jamais sous Floor.
type BackoffPolicy struct {
	LiveBase      time.Duration
	LiveJitter    time.Duration
	OfflineBase   time.Duration
	OfflineJitter time.Duration
	Floor         time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		LiveBase:      30 * time.Second,
		LiveJitter:    10 * time.Second,
		OfflineBase:   90 * time.Second,
		OfflineJitter: 30 * time.Second,
		Floor:         10 * time.Second,
	}
}

type BackoffPlanner struct {
	policy BackoffPolicy

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBackoffPlanner(policy BackoffPolicy) *BackoffPlanner {
	return &BackoffPlanner{
		policy: policy,
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Delay tire un nouveau délai; chaque appel a son propre jitter.
func (p *BackoffPlanner) Delay(isLive bool) time.Duration {
	base, jitter := p.policy.OfflineBase, p.policy.OfflineJitter
	if isLive {
		base, jitter = p.policy.LiveBase, p.policy.LiveJitter
	}

	d := base
	if jitter > 0 {
		p.mu.Lock()
		offset := time.Duration(p.rnd.Int64N(int64(2*jitter)+1)) - jitter
		p.mu.Unlock()
		d += offset
	}
	if d < p.policy.Floor {
		d = p.policy.Floor
	}
	return d
}

func (p *BackoffPlanner) NextCheck(now time.Time, isLive bool) time.Time {
	return now.Add(p.Delay(isLive))
}
