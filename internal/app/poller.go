package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

// OutcomeFailed marque un compte dont la persistance a échoué pendant ce passage.
const OutcomeFailed Outcome = "failed"

type PollerOptions struct {
	// Délai max d'un appel d'adapter (une plateforme) pendant un passage.
	AdapterTimeout time.Duration
	Backoff        BackoffPolicy
	Clock          func() time.Time
}

func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		AdapterTimeout: 45 * time.Second,
		Backoff:        DefaultBackoffPolicy(),
		Clock:          time.Now,
	}
}

type PollResult struct {
	OK         bool   `json:"ok"`
	Processed  int    `json:"processed"`
	Live       int    `json:"live"`
	Unknown    int    `json:"unknown"`
	Failed     int    `json:"failed"`
	RunID      string `json:"runId"`
	DurationMS int64  `json:"durationMs"`
}

// Poller orchestre un passage complet: sélection des comptes dus, fetch par
// plateforme en parallèle, réconciliation compte par compte, replanification.
type Poller struct {
	logger     zerolog.Logger
	accounts   ports.AccountRepository
	adapters   map[domain.Platform]ports.PlatformAdapter
	reconciler *Reconciler
	planner    *BackoffPlanner
	settings   *SettingsService
	limiter    *DynamicLimiter
	bus        ports.EventBus
	opts       PollerOptions

	// view est optionnelle (Redis non configuré).
	view ports.LiveView
}

func NewPoller(
	logger zerolog.Logger,
	accounts ports.AccountRepository,
	adapters map[domain.Platform]ports.PlatformAdapter,
	reconciler *Reconciler,
	settings *SettingsService,
	limiter *DynamicLimiter,
	bus ports.EventBus,
	view ports.LiveView,
	opts PollerOptions,
) *Poller {
	def := DefaultPollerOptions()
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = def.AdapterTimeout
	}
	if opts.Backoff == (BackoffPolicy{}) {
		opts.Backoff = def.Backoff
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if limiter == nil {
		limiter = NewDynamicLimiter(domain.DefaultPollSettings().AccountConcurrency)
	}
	return &Poller{
		logger:     logger,
		accounts:   accounts,
		adapters:   adapters,
		reconciler: reconciler,
		planner:    NewBackoffPlanner(opts.Backoff),
		settings:   settings,
		limiter:    limiter,
		bus:        bus,
		view:       view,
		opts:       opts,
	}
}

// RunOnce exécute un passage. Sans état: plusieurs passages peuvent se
// chevaucher, l'idempotence est assurée par le stockage.
func (p *Poller) RunOnce(ctx context.Context) (PollResult, error) {
	started := time.Now()
	res := PollResult{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", res.RunID).Logger()
	now := p.opts.Clock().UTC()

	settings, err := p.settings.Get(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("settings unavailable, using defaults")
		settings = domain.DefaultPollSettings()
	}
	p.limiter.SetLimit(settings.AccountConcurrency)

	due, err := p.accounts.Due(ctx, now, settings.BatchSize)
	if err != nil {
		return res, fmt.Errorf("select due accounts: %w", err)
	}
	if len(due) == 0 {
		res.OK = true
		res.DurationMS = time.Since(started).Milliseconds()
		return res, nil
	}

	verdicts := resolveVerdicts(due, p.fetchAll(ctx, logger, due))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, acct := range due {
		v := verdicts[acct.ID]
		err := p.limiter.Go(ctx, &wg, func() {
			rep := p.processAccount(ctx, logger, acct, v, now)
			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			switch {
			case rep.err != nil:
				res.Failed++
			case rep.outcome == OutcomeSkippedUnknown:
				res.Unknown++
			case rep.isLive:
				res.Live++
			}
		})
		if err != nil {
			break
		}
	}
	wg.Wait()

	res.OK = ctx.Err() == nil
	res.DurationMS = time.Since(started).Milliseconds()
	logger.Info().
		Int("due", len(due)).
		Int("processed", res.Processed).
		Int("live", res.Live).
		Int("unknown", res.Unknown).
		Int("failed", res.Failed).
		Int64("duration_ms", res.DurationMS).
		Msg("poll run finished")
	p.publishResult(res)

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (p *Poller) fetchAll(ctx context.Context, logger zerolog.Logger, due []domain.PlatformAccount) map[domain.Platform]ports.FetchResult {
	buckets := map[domain.Platform][]domain.PlatformAccount{}
	for _, acct := range due {
		buckets[acct.Platform] = append(buckets[acct.Platform], acct)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	out := make(map[domain.Platform]ports.FetchResult, len(buckets))
	for platform, accts := range buckets {
		g.Go(func() error {
			fr := p.fetchPlatform(ctx, logger, platform, accts)
			mu.Lock()
			out[platform] = fr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Poller) fetchPlatform(ctx context.Context, logger zerolog.Logger, platform domain.Platform, accts []domain.PlatformAccount) ports.FetchResult {
	adapter, ok := p.adapters[platform]
	if !ok || adapter == nil {
		fr := ports.NewFetchResult()
		for _, a := range accts {
			fr.Errors = append(fr.Errors, ports.AccountError{
				AccountID:      a.ID,
				PlatformUserID: a.PlatformUserID,
				Err:            &ports.FetchError{Code: ports.CodeNoAdapter, Message: "no adapter registered for " + string(platform)},
			})
		}
		return fr
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.AdapterTimeout)
	defer cancel()

	start := time.Now()
	fr := adapter.Fetch(fctx, accts)
	if fr.Snapshots == nil {
		fr.Snapshots = map[string]domain.Snapshot{}
	}
	logger.Debug().
		Str("platform", string(platform)).
		Int("accounts", len(accts)).
		Int("snapshots", len(fr.Snapshots)).
		Int("errors", len(fr.Errors)).
		Dur("duration", time.Since(start)).
		Msg("platform fetched")
	return fr
}

type verdictKind int

const (
	verdictOffline verdictKind = iota
	verdictLive
	verdictUnknown
)

type verdict struct {
	kind     verdictKind
	snapshot domain.Snapshot
	err      error
	// synthesized: ni snapshot ni erreur, hors ligne par défaut.
	synthesized bool
}

// resolveVerdicts donne un verdict à chaque compte dû. Un snapshot l'emporte,
// puis une erreur d'adapter (statut inconnu), sinon hors ligne synthétisé.
func resolveVerdicts(due []domain.PlatformAccount, results map[domain.Platform]ports.FetchResult) map[string]verdict {
	errByAccount := map[string]error{}
	for _, fr := range results {
		for _, ae := range fr.Errors {
			if ae.Err == nil {
				ae.Err = errors.New("unknown fetch error")
			}
			errByAccount[ae.AccountID] = ae.Err
		}
	}

	out := make(map[string]verdict, len(due))
	for _, acct := range due {
		if snap, ok := results[acct.Platform].Snapshots[acct.PlatformUserID]; ok {
			kind := verdictOffline
			if snap.IsLive {
				kind = verdictLive
			}
			out[acct.ID] = verdict{kind: kind, snapshot: snap}
			continue
		}
		if err, ok := errByAccount[acct.ID]; ok {
			out[acct.ID] = verdict{kind: verdictUnknown, err: err}
			continue
		}
		out[acct.ID] = verdict{
			kind:        verdictOffline,
			snapshot:    domain.OfflineSnapshot(acct.PlatformUserID),
			synthesized: true,
		}
	}
	return out
}

type accountReport struct {
	outcome Outcome
	isLive  bool
	err     error
}

func (p *Poller) processAccount(ctx context.Context, logger zerolog.Logger, acct domain.PlatformAccount, v verdict, now time.Time) accountReport {
	start := time.Now()
	rep := accountReport{isLive: v.kind == verdictLive}

	if v.kind == verdictUnknown {
		rep.outcome = OutcomeSkippedUnknown
	} else {
		res, err := p.reconciler.Reconcile(ctx, acct, v.snapshot, now)
		rep.outcome = res.Outcome
		if err != nil {
			rep.err = err
			if rep.outcome == "" {
				rep.outcome = OutcomeFailed
			}
		} else {
			p.project(ctx, logger, acct, res)
		}
	}

	// Un échec de persistance laisse next_check_at intact: le compte reste dû.
	if rep.err == nil {
		next := p.planner.NextCheck(now, rep.isLive)
		if err := p.accounts.UpdateSchedule(ctx, acct.ID, now, next); err != nil {
			rep.err = fmt.Errorf("update schedule: %w", err)
		}
	}

	ev := logger.Info()
	switch {
	case rep.err != nil:
		ev = logger.Error().Err(rep.err)
	case v.kind == verdictUnknown:
		ev = logger.Warn().Str("fetch_code", fetchCode(v.err)).AnErr("fetch_error", v.err)
	}
	ev.Str("event", "poll_account_result").
		Str("account_id", acct.ID).
		Str("platform", string(acct.Platform)).
		Str("username", acct.QueryName()).
		Str("outcome", string(rep.outcome)).
		Bool("is_live", rep.isLive).
		Bool("synthesized", v.synthesized).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("poll_account_result")
	return rep
}

func (p *Poller) project(ctx context.Context, logger zerolog.Logger, acct domain.PlatformAccount, res ReconcileResult) {
	if p.view == nil || res.Session == nil {
		return
	}
	var err error
	switch res.Outcome {
	case OutcomeCreatedSession, OutcomeUpdatedSession, OutcomeRaceLost:
		err = p.view.Put(ctx, acct, *res.Session)
	case OutcomeClosedSession:
		err = p.view.Remove(ctx, acct)
	}
	if err != nil {
		logger.Warn().Err(err).Str("account_id", acct.ID).Msg("live view update failed")
	}
}

func (p *Poller) publishResult(res PollResult) {
	if p.bus == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	p.bus.Publish("poll.completed", b)
}

func fetchCode(err error) string {
	var fe *ports.FetchError
	if errors.As(err, &fe) && fe.Code != "" {
		return fe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	return "unknown"
}
