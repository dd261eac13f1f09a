// Package cache keeps the last synchronized ledger on disk so the client can
// keep working while the accounting service is unreachable.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Collection names
const (
	Transactions        = "transactions"
	MonthlyBudgets      = "monthly_budgets"
	Settings            = "settings"
	PendingBudgetWrites = "pending_budget_writes"
)

const (
	metaLastSync     = "last_sync_time"
	metaCurrentMonth = "current_month"
)

// ErrMiss is returned when a collection or key was never written
var ErrMiss = errors.New("cache miss")

// Store is a key-value cache backed by a SQLite file
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache file at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create cache dir: %v", domain.ErrCacheUnavailable, err)
		}
	}

	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", domain.ErrCacheUnavailable, err)
	}
	// SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	log.Debug().Str("path", path).Msg("Offline cache opened")
	return &Store{db: db}, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Load decodes a stored collection into dst
func (s *Store) Load(ctx context.Context, collection string, dst interface{}) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, collection).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrCacheUnavailable, collection, err)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrCacheUnavailable, collection, err)
	}
	return nil
}

// Save replaces a collection with records
func (s *Store) Save(ctx context.Context, collection string, records interface{}) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrCacheUnavailable, collection, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		collection, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrCacheUnavailable, collection, err)
	}
	return nil
}

// LastSyncTime returns the instant of the last successful synchronization
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	value, err := s.getMeta(ctx, metaLastSync)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: decode %s: %v", domain.ErrCacheUnavailable, metaLastSync, err)
	}
	return t, nil
}

func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, metaLastSync, t.UTC().Format(time.RFC3339Nano))
}

// CurrentMonth returns the month the client last displayed
func (s *Store) CurrentMonth(ctx context.Context) (string, error) {
	return s.getMeta(ctx, metaCurrentMonth)
}

func (s *Store) SetCurrentMonth(ctx context.Context, month string) error {
	return s.setMeta(ctx, metaCurrentMonth, month)
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", domain.ErrCacheUnavailable, key, err)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrCacheUnavailable, key, err)
	}
	return nil
}
