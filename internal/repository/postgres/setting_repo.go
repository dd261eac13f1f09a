package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kthezelais/budget-tracker/internal/domain"
)

// SettingRepository implements domain.SettingRepository using PostgreSQL
type SettingRepository struct {
	pool *pgxpool.Pool
}

// NewSettingRepository creates a new SettingRepository
func NewSettingRepository(pool *pgxpool.Pool) *SettingRepository {
	return &SettingRepository{pool: pool}
}

// GetAll returns every setting ordered by key
func (r *SettingRepository) GetAll(ctx context.Context) ([]*domain.Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]*domain.Setting, 0)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// GetByKey retrieves a setting by key
func (r *SettingRepository) GetByKey(ctx context.Context, key string) (*domain.Setting, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, key, value, updated_at FROM settings WHERE key = $1`, key)
	return scanSetting(row)
}

// Upsert creates or replaces a setting
func (r *SettingRepository) Upsert(ctx context.Context, key, value string) (*domain.Setting, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		 RETURNING id, key, value, updated_at`,
		key, value,
	)
	return scanSetting(row)
}

// Update replaces the value of an existing setting
func (r *SettingRepository) Update(ctx context.Context, key, value string) (*domain.Setting, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE settings SET value = $2, updated_at = NOW() WHERE key = $1
		 RETURNING id, key, value, updated_at`,
		key, value,
	)
	return scanSetting(row)
}

func scanSetting(row pgx.Row) (*domain.Setting, error) {
	var s domain.Setting
	if err := row.Scan(&s.ID, &s.Key, &s.Value, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettingNotFound
		}
		return nil, err
	}
	return &s, nil
}
