package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

const settingsKey = "poll"

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.PollSettings, error) {
	var b []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM poll_settings WHERE key = $1`, settingsKey).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultPollSettings(), nil
		}
		return domain.PollSettings{}, fmt.Errorf("get settings: %w", err)
	}
	var s domain.PollSettings
	if err := json.Unmarshal(b, &s); err != nil {
		return domain.DefaultPollSettings(), nil
	}
	return s.Normalize(), nil
}

func (r *SettingsRepository) Put(ctx context.Context, settings domain.PollSettings) (domain.PollSettings, error) {
	b, err := json.Marshal(settings.Normalize())
	if err != nil {
		return domain.PollSettings{}, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO poll_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, settingsKey, string(b))
	if err != nil {
		return domain.PollSettings{}, fmt.Errorf("put settings: %w", err)
	}
	return r.Get(ctx)
}
