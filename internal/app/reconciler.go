package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
	"github.com/rs/xid"
)

type Outcome string

const (
	OutcomeNoChange       Outcome = "no_change"
	OutcomeCreatedSession Outcome = "created_session"
	OutcomeUpdatedSession Outcome = "updated_session"
	OutcomeClosedSession  Outcome = "closed_session"
	OutcomeRaceLost       Outcome = "race_lost_refetched"
	OutcomeSkippedUnknown Outcome = "skipped_unknown"
)

type ReconcileResult struct {
	Outcome Outcome
	// Session est la session touchée (ou retrouvée); nil si le compte était
	// et reste hors ligne.
	Session *domain.LiveSession
}

// Reconciler compare l'état persisté d'un compte à son Snapshot frais.
//
// "Était en live" se lit toujours dans le stockage (session ouverte ou non),
// jamais en mémoire: deux passages peuvent tourner en même temps.
type Reconciler struct {
	sessions ports.SessionRepository
	events   ports.StatusEventRepository
	bus      ports.EventBus
}

func NewReconciler(sessions ports.SessionRepository, events ports.StatusEventRepository, bus ports.EventBus) *Reconciler {
	return &Reconciler{sessions: sessions, events: events, bus: bus}
}

func (r *Reconciler) Reconcile(ctx context.Context, acct domain.PlatformAccount, snap domain.Snapshot, now time.Time) (ReconcileResult, error) {
	open, err := r.sessions.FindOpen(ctx, acct.ID)
	wasLive := err == nil
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return ReconcileResult{}, fmt.Errorf("find open session: %w", err)
	}

	switch {
	case snap.IsLive && !wasLive:
		return r.open(ctx, acct, snap, now)
	case snap.IsLive && wasLive:
		if err := r.ensureWentLive(ctx, acct, open, snap, now); err != nil {
			return ReconcileResult{}, err
		}
		return r.update(ctx, open, snap, now)
	case !snap.IsLive && wasLive:
		return r.close(ctx, acct, open, snap, now)
	default:
		return ReconcileResult{Outcome: OutcomeNoChange}, nil
	}
}

func (r *Reconciler) open(ctx context.Context, acct domain.PlatformAccount, snap domain.Snapshot, now time.Time) (ReconcileResult, error) {
	startedAt := now
	if snap.StartedAt != nil && !snap.StartedAt.IsZero() {
		startedAt = snap.StartedAt.UTC()
	}

	created, err := r.sessions.Insert(ctx, domain.LiveSession{
		ID:                xid.New().String(),
		PlatformAccountID: acct.ID,
		IsLive:            true,
		StartedAt:         startedAt,
		Title:             snap.Title,
		Category:          snap.Category,
		ViewerCount:       snap.ViewerCount,
		StreamURL:         snap.StreamURL,
		ThumbnailURL:      snap.ThumbnailURL,
		Raw:               snap.Raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		if !errors.Is(err, ports.ErrConflict) {
			return ReconcileResult{}, fmt.Errorf("insert session: %w", err)
		}
		// Un autre passage a ouvert la session en premier: c'est elle qui fait foi.
		canonical, err := r.sessions.FindOpen(ctx, acct.ID)
		if errors.Is(err, ports.ErrNotFound) {
			// Ouverte puis déjà refermée par d'autres passages.
			return ReconcileResult{Outcome: OutcomeRaceLost}, nil
		}
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("refetch open session after conflict: %w", err)
		}
		return ReconcileResult{Outcome: OutcomeRaceLost, Session: &canonical}, nil
	}

	// L'événement suit l'insert: un perdant de course n'en écrit jamais.
	// S'il échoue, le compte reste dû et le passage suivant le rattrape
	// (voir ensureWentLive).
	if _, err := r.events.Insert(ctx, acct.ID, domain.EventWentLive, snap.Payload(), now); err != nil {
		return ReconcileResult{Outcome: OutcomeCreatedSession, Session: &created}, fmt.Errorf("insert went_live event: %w", err)
	}
	publishSession(r.bus, "session.opened", created)
	return ReconcileResult{Outcome: OutcomeCreatedSession, Session: &created}, nil
}

// eventRepairGrace laisse au passage qui vient d'ouvrir la session le temps
// d'écrire lui-même son went_live.
const eventRepairGrace = 30 * time.Second

// ensureWentLive écrit le went_live manquant d'une session ouverte: tant
// qu'une session est ouverte, le dernier événement du compte est went_live.
func (r *Reconciler) ensureWentLive(ctx context.Context, acct domain.PlatformAccount, open domain.LiveSession, snap domain.Snapshot, now time.Time) error {
	if now.Sub(open.CreatedAt) < eventRepairGrace {
		return nil
	}
	last, err := r.events.Latest(ctx, acct.ID)
	switch {
	case err == nil && last.Type == domain.EventWentLive:
		return nil
	case err != nil && !errors.Is(err, ports.ErrNotFound):
		return fmt.Errorf("latest status event: %w", err)
	}
	if _, err := r.events.Insert(ctx, acct.ID, domain.EventWentLive, snap.Payload(), now); err != nil {
		return fmt.Errorf("insert missing went_live event: %w", err)
	}
	return nil
}

func (r *Reconciler) update(ctx context.Context, open domain.LiveSession, snap domain.Snapshot, now time.Time) (ReconcileResult, error) {
	upd := domain.SessionUpdate{
		Title:       open.Title,
		ViewerCount: snap.ViewerCount,
		UpdatedAt:   now,
	}
	if snap.Title != "" {
		upd.Title = snap.Title
	}

	if err := r.sessions.Update(ctx, open.ID, upd); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// Fermée entre-temps par un passage concurrent.
			return ReconcileResult{Outcome: OutcomeNoChange}, nil
		}
		return ReconcileResult{}, fmt.Errorf("update session %s: %w", open.ID, err)
	}

	open.Title = upd.Title
	open.ViewerCount = upd.ViewerCount
	open.UpdatedAt = now
	publishSession(r.bus, "session.updated", open)
	return ReconcileResult{Outcome: OutcomeUpdatedSession, Session: &open}, nil
}

func (r *Reconciler) close(ctx context.Context, acct domain.PlatformAccount, open domain.LiveSession, snap domain.Snapshot, now time.Time) (ReconcileResult, error) {
	if err := r.sessions.Close(ctx, open.ID, now); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ReconcileResult{Outcome: OutcomeNoChange}, nil
		}
		return ReconcileResult{}, fmt.Errorf("close session %s: %w", open.ID, err)
	}

	ended := now
	open.IsLive = false
	open.EndedAt = &ended

	// Pas de rattrapage ici: une fois la session fermée, le compte repasse
	// par le chemin hors ligne -> hors ligne sans trace du went_offline manqué.
	// TODO: écrire session fermée et went_offline dans une même transaction.
	if _, err := r.events.Insert(ctx, acct.ID, domain.EventWentOffline, snap.Payload(), now); err != nil {
		return ReconcileResult{Outcome: OutcomeClosedSession, Session: &open}, fmt.Errorf("insert went_offline event: %w", err)
	}
	publishSession(r.bus, "session.closed", open)
	return ReconcileResult{Outcome: OutcomeClosedSession, Session: &open}, nil
}
