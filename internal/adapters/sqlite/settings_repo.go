package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

const settingsKey = "poll"

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.PollSettings, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM settings WHERE key = ?`, settingsKey).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Pas encore initialisé → valeurs par défaut.
			return domain.DefaultPollSettings(), nil
		}
		return domain.PollSettings{}, err
	}
	var s domain.PollSettings
	if err := json.Unmarshal(b, &s); err != nil {
		// Si corrompu : fallback safe.
		return domain.DefaultPollSettings(), nil
	}
	return s.Normalize(), nil
}

func (r *SettingsRepository) Put(ctx context.Context, settings domain.PollSettings) (domain.PollSettings, error) {
	b, err := json.Marshal(settings.Normalize())
	if err != nil {
		return domain.PollSettings{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, settingsKey, b, formatTime(time.Now()))
	if err != nil {
		return domain.PollSettings{}, err
	}
	return r.Get(ctx)
}
