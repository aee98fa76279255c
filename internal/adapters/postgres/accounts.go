package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type AccountsRepository struct {
	pool *pgxpool.Pool
}

const accountColumns = `id, platform, platform_user_id, platform_username, is_enabled,
	last_checked_at, next_check_at, created_at, updated_at`

func (r *AccountsRepository) Create(ctx context.Context, a domain.PlatformAccount) (domain.PlatformAccount, error) {
	var lastChecked *time.Time
	if !a.LastCheckedAt.IsZero() {
		lastChecked = &a.LastCheckedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO platform_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, string(a.Platform), a.PlatformUserID, a.PlatformUsername, a.IsEnabled,
		lastChecked, a.NextCheckAt.UTC(), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.PlatformAccount{}, ports.ErrConflict
		}
		return domain.PlatformAccount{}, fmt.Errorf("insert account: %w", err)
	}
	return r.Get(ctx, a.ID)
}

func (r *AccountsRepository) Get(ctx context.Context, id string) (domain.PlatformAccount, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM platform_accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PlatformAccount{}, ports.ErrNotFound
		}
		return domain.PlatformAccount{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *AccountsRepository) List(ctx context.Context, limit int) ([]domain.PlatformAccount, error) {
	return r.query(ctx, `
		SELECT `+accountColumns+` FROM platform_accounts
		ORDER BY platform, platform_username, platform_user_id
		LIMIT $1
	`, limitOrAll(limit))
}

func (r *AccountsRepository) SetEnabled(ctx context.Context, id string, enabled bool) (domain.PlatformAccount, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE platform_accounts SET is_enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return domain.PlatformAccount{}, fmt.Errorf("set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.PlatformAccount{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *AccountsRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.PlatformAccount, error) {
	return r.query(ctx, `
		SELECT `+accountColumns+` FROM platform_accounts
		WHERE is_enabled AND next_check_at <= $1
		ORDER BY next_check_at ASC, id ASC
		LIMIT $2
	`, now.UTC(), limitOrAll(limit))
}

func (r *AccountsRepository) UpdateSchedule(ctx context.Context, id string, lastCheckedAt, nextCheckAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE platform_accounts
		SET last_checked_at = GREATEST(last_checked_at, $2),
			next_check_at = GREATEST(next_check_at, $3),
			updated_at = now()
		WHERE id = $1
	`, id, lastCheckedAt.UTC(), nextCheckAt.UTC())
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *AccountsRepository) query(ctx context.Context, q string, args ...any) ([]domain.PlatformAccount, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	out := []domain.PlatformAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate accounts: %w", rows.Err())
	}
	return out, nil
}

func scanAccount(row pgx.Row) (domain.PlatformAccount, error) {
	var a domain.PlatformAccount
	var platform string
	var lastChecked *time.Time
	if err := row.Scan(
		&a.ID, &platform, &a.PlatformUserID, &a.PlatformUsername, &a.IsEnabled,
		&lastChecked, &a.NextCheckAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return domain.PlatformAccount{}, err
	}
	a.Platform = domain.Platform(platform)
	if lastChecked != nil {
		a.LastCheckedAt = lastChecked.UTC()
	}
	a.NextCheckAt = a.NextCheckAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// LIMIT NULL renvoie tout.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
