package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

// StatusEventsRepository est en ajout seul.
type StatusEventsRepository struct {
	db *sql.DB
}

func NewStatusEventsRepository(db *sql.DB) *StatusEventsRepository {
	return &StatusEventsRepository{db: db}
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_events(id, platform_account_id, type, payload_json, created_at)
		VALUES(?, ?, ?, ?, ?)
	`, evt.ID, evt.PlatformAccountID, string(evt.Type), string(evt.Payload), formatTime(evt.CreatedAt))
	if err != nil {
		return domain.StatusEvent{}, err
	}
	return evt, nil
}

func (r *StatusEventsRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.StatusEvent, error) {
	q := `
		SELECT id, platform_account_id, type, payload_json, created_at
		FROM status_events
		WHERE platform_account_id = ?
		ORDER BY created_at ASC, id ASC
	`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.StatusEvent{}
	for rows.Next() {
		evt, err := scanStatusEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *StatusEventsRepository) Latest(ctx context.Context, accountID string) (domain.StatusEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform_account_id, type, payload_json, created_at
		FROM status_events
		WHERE platform_account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, accountID)
	evt, err := scanStatusEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusEvent{}, ports.ErrNotFound
	}
	return evt, err
}

func scanStatusEvent(row rowScanner) (domain.StatusEvent, error) {
	var (
		evt              domain.StatusEvent
		typ, payload, ts string
	)
	if err := row.Scan(&evt.ID, &evt.PlatformAccountID, &typ, &payload, &ts); err != nil {
		return domain.StatusEvent{}, err
	}
	evt.Type = domain.StatusEventType(typ)
	evt.Payload = json.RawMessage(payload)
	evt.CreatedAt = parseTime(ts)
	return evt, nil
}
