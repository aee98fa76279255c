package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type SessionsRepository struct {
	pool *pgxpool.Pool
}

const sessionColumns = `id, platform_account_id, is_live, started_at, ended_at,
	title, category, viewer_count, stream_url, thumbnail_url, raw,
	created_at, updated_at`

func (r *SessionsRepository) FindOpen(ctx context.Context, accountID string) (domain.LiveSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM live_sessions
		WHERE platform_account_id = $1 AND ended_at IS NULL
	`, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LiveSession{}, ports.ErrNotFound
		}
		return domain.LiveSession{}, fmt.Errorf("find open session: %w", err)
	}
	return s, nil
}

func (r *SessionsRepository) Insert(ctx context.Context, s domain.LiveSession) (domain.LiveSession, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO live_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, s.ID, s.PlatformAccountID, s.IsLive, s.StartedAt.UTC(), s.EndedAt,
		s.Title, s.Category, s.ViewerCount, s.StreamURL, s.ThumbnailURL, rawOrNil(s.Raw),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.LiveSession{}, ports.ErrConflict
		}
		return domain.LiveSession{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (r *SessionsRepository) Update(ctx context.Context, id string, upd domain.SessionUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE live_sessions SET title = $2, viewer_count = $3, updated_at = $4
		WHERE id = $1 AND ended_at IS NULL
	`, id, upd.Title, upd.ViewerCount, upd.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *SessionsRepository) Close(ctx context.Context, id string, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE live_sessions SET is_live = false, ended_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`, id, endedAt.UTC())
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *SessionsRepository) ListOpen(ctx context.Context, limit int) ([]domain.LiveSession, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM live_sessions
		WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT $1
	`, limitOrAll(limit))
}

func (r *SessionsRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.LiveSession, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM live_sessions
		WHERE platform_account_id = $1 ORDER BY started_at DESC LIMIT $2
	`, accountID, limitOrAll(limit))
}

func (r *SessionsRepository) query(ctx context.Context, q string, args ...any) ([]domain.LiveSession, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.LiveSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sessions: %w", rows.Err())
	}
	return out, nil
}

func scanSession(row pgx.Row) (domain.LiveSession, error) {
	var s domain.LiveSession
	var raw []byte
	if err := row.Scan(
		&s.ID, &s.PlatformAccountID, &s.IsLive, &s.StartedAt, &s.EndedAt,
		&s.Title, &s.Category, &s.ViewerCount, &s.StreamURL, &s.ThumbnailURL, &raw,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return domain.LiveSession{}, err
	}
	s.StartedAt = s.StartedAt.UTC()
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		s.EndedAt = &t
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if len(raw) > 0 {
		s.Raw = json.RawMessage(raw)
	}
	return s, nil
}

// JSONB refuse une chaîne vide: on passe NULL.
func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type StatusEventsRepository struct {
	pool *pgxpool.Pool
}

func (r *StatusEventsRepository) Insert(ctx context.Context, accountID string, typ domain.StatusEventType, payload json.RawMessage, at time.Time) (domain.StatusEvent, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	evt := domain.StatusEvent{
		ID:                xid.New().String(),
		PlatformAccountID: accountID,
		Type:              typ,
		Payload:           payload,
		CreatedAt:         at.UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO status_events (id, platform_account_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.ID, evt.PlatformAccountID, string(evt.Type), string(evt.Payload), evt.CreatedAt)
	if err != nil {
		return domain.StatusEvent{}, fmt.Errorf("insert status event: %w", err)
	}
	return evt, nil
}

func (r *StatusEventsRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.StatusEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, platform_account_id, type, payload, created_at
		FROM status_events
		WHERE platform_account_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, accountID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query status events: %w", err)
	}
	defer rows.Close()

	out := []domain.StatusEvent{}
	for rows.Next() {
		var evt domain.StatusEvent
		var typ string
		var payload []byte
		if err := rows.Scan(&evt.ID, &evt.PlatformAccountID, &typ, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		evt.Type = domain.StatusEventType(typ)
		evt.Payload = json.RawMessage(payload)
		evt.CreatedAt = evt.CreatedAt.UTC()
		out = append(out, evt)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate status events: %w", rows.Err())
	}
	return out, nil
}

func (r *StatusEventsRepository) Latest(ctx context.Context, accountID string) (domain.StatusEvent, error) {
	var evt domain.StatusEvent
	var typ string
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, platform_account_id, type, payload, created_at
		FROM status_events
		WHERE platform_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, accountID).Scan(&evt.ID, &evt.PlatformAccountID, &typ, &payload, &evt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StatusEvent{}, ports.ErrNotFound
		}
		return domain.StatusEvent{}, fmt.Errorf("latest status event: %w", err)
	}
	evt.Type = domain.StatusEventType(typ)
	evt.Payload = json.RawMessage(payload)
	evt.CreatedAt = evt.CreatedAt.UTC()
	return evt, nil
}
