package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type AccountsRepository struct {
	db *sql.DB
}

func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

const accountColumns = `id, platform, platform_user_id, platform_username, is_enabled,
	last_checked_at, next_check_at, created_at, updated_at`

func (r *AccountsRepository) Create(ctx context.Context, a domain.PlatformAccount) (domain.PlatformAccount, error) {
	var lastChecked string
	if !a.LastCheckedAt.IsZero() {
		lastChecked = formatTime(a.LastCheckedAt)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO platform_accounts(`+accountColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, string(a.Platform), a.PlatformUserID, a.PlatformUsername, a.IsEnabled,
		lastChecked, formatTime(a.NextCheckAt), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "platform_accounts") {
			return domain.PlatformAccount{}, ports.ErrConflict
		}
		return domain.PlatformAccount{}, err
	}
	return r.Get(ctx, a.ID)
}

func (r *AccountsRepository) Get(ctx context.Context, id string) (domain.PlatformAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM platform_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PlatformAccount{}, ports.ErrNotFound
		}
		return domain.PlatformAccount{}, err
	}
	return a, nil
}

func (r *AccountsRepository) List(ctx context.Context, limit int) ([]domain.PlatformAccount, error) {
	q := `SELECT ` + accountColumns + ` FROM platform_accounts ORDER BY platform, platform_username, platform_user_id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, q, args...)
}

func (r *AccountsRepository) SetEnabled(ctx context.Context, id string, enabled bool) (domain.PlatformAccount, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_accounts SET is_enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, formatTime(time.Now()), id)
	if err != nil {
		return domain.PlatformAccount{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.PlatformAccount{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *AccountsRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.PlatformAccount, error) {
	q := `
		SELECT ` + accountColumns + ` FROM platform_accounts
		WHERE is_enabled = 1 AND next_check_at <= ?
		ORDER BY next_check_at ASC, id ASC
	`
	args := []any{formatTime(now)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, q, args...)
}

func (r *AccountsRepository) UpdateSchedule(ctx context.Context, id string, lastCheckedAt, nextCheckAt time.Time) error {
	// MAX() scalaire: next_check_at ne recule jamais, même si un passage plus
	// ancien écrit après un plus récent.
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_accounts
		SET last_checked_at = MAX(last_checked_at, ?),
			next_check_at = MAX(next_check_at, ?),
			updated_at = ?
		WHERE id = ?
	`, formatTime(lastCheckedAt), formatTime(nextCheckAt), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *AccountsRepository) query(ctx context.Context, q string, args ...any) ([]domain.PlatformAccount, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PlatformAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row rowScanner) (domain.PlatformAccount, error) {
	var a domain.PlatformAccount
	var platform, lastChecked, nextCheck, created, updated string
	if err := row.Scan(
		&a.ID, &platform, &a.PlatformUserID, &a.PlatformUsername, &a.IsEnabled,
		&lastChecked, &nextCheck, &created, &updated,
	); err != nil {
		return domain.PlatformAccount{}, err
	}
	a.Platform = domain.Platform(platform)
	a.LastCheckedAt = parseTime(lastChecked)
	a.NextCheckAt = parseTime(nextCheck)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}
