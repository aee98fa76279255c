package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type SessionsRepository struct {
	db *sql.DB
}

func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

const sessionColumns = `id, platform_account_id, is_live, started_at, ended_at,
	title, category, viewer_count, stream_url, thumbnail_url, raw_json,
	created_at, updated_at`

func (r *SessionsRepository) FindOpen(ctx context.Context, accountID string) (domain.LiveSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM live_sessions
		WHERE platform_account_id = ? AND ended_at IS NULL
	`, accountID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LiveSession{}, ports.ErrNotFound
		}
		return domain.LiveSession{}, err
	}
	return s, nil
}

func (r *SessionsRepository) Insert(ctx context.Context, s domain.LiveSession) (domain.LiveSession, error) {
	var raw sql.NullString
	if len(s.Raw) > 0 {
		raw = sql.NullString{String: string(s.Raw), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO live_sessions(`+sessionColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.PlatformAccountID, s.IsLive, formatTime(s.StartedAt), nullTime(s.EndedAt),
		s.Title, s.Category, nullInt64(s.ViewerCount), s.StreamURL, s.ThumbnailURL, raw,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "live_sessions") {
			return domain.LiveSession{}, ports.ErrConflict
		}
		return domain.LiveSession{}, err
	}
	return s, nil
}

func (r *SessionsRepository) Update(ctx context.Context, id string, upd domain.SessionUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE live_sessions SET title = ?, viewer_count = ?, updated_at = ?
		WHERE id = ? AND ended_at IS NULL
	`, upd.Title, nullInt64(upd.ViewerCount), formatTime(upd.UpdatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *SessionsRepository) Close(ctx context.Context, id string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE live_sessions SET is_live = 0, ended_at = ?
		WHERE id = ? AND ended_at IS NULL
	`, formatTime(endedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *SessionsRepository) ListOpen(ctx context.Context, limit int) ([]domain.LiveSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE ended_at IS NULL ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, q, args...)
}

func (r *SessionsRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.LiveSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE platform_account_id = ? ORDER BY started_at DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, q, args...)
}

func (r *SessionsRepository) query(ctx context.Context, q string, args ...any) ([]domain.LiveSession, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LiveSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (domain.LiveSession, error) {
	var (
		s                         domain.LiveSession
		started, created, updated string
		ended, raw                sql.NullString
		viewers                   sql.NullInt64
	)
	if err := row.Scan(
		&s.ID, &s.PlatformAccountID, &s.IsLive, &started, &ended,
		&s.Title, &s.Category, &viewers, &s.StreamURL, &s.ThumbnailURL, &raw,
		&created, &updated,
	); err != nil {
		return domain.LiveSession{}, err
	}
	s.StartedAt = parseTime(started)
	s.EndedAt = parseNullTime(ended)
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	if viewers.Valid {
		v := viewers.Int64
		s.ViewerCount = &v
	}
	if raw.Valid && raw.String != "" {
		s.Raw = []byte(raw.String)
	}
	return s, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
