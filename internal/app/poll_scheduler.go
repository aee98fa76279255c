package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PollScheduler déclenche un passage du poller à intervalle fixe.
// Aucun verrou d'exclusion: un passage déclenché ailleurs (HTTP, cron)
// peut tourner en même temps.
type PollScheduler struct {
	logger zerolog.Logger
	poller *Poller

	TickInterval time.Duration
	RunTimeout   time.Duration
}

func NewPollScheduler(logger zerolog.Logger, poller *Poller) *PollScheduler {
	return &PollScheduler{
		logger:       logger,
		poller:       poller,
		TickInterval: 60 * time.Second,
		RunTimeout:   5 * time.Minute,
	}
}

func (sch *PollScheduler) Run(ctx context.Context) {
	interval := sch.TickInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	sch.logger.Info().Dur("interval", interval).Msg("poll scheduler started")

	sch.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sch.logger.Info().Msg("poll scheduler stopped")
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *PollScheduler) tick(ctx context.Context) {
	if sch.poller == nil {
		return
	}
	timeout := sch.RunTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := sch.poller.RunOnce(rctx); err != nil {
		sch.logger.Error().Err(err).Msg("poll run failed")
	}
}
