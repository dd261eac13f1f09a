package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kthezelais/budget-tracker/internal/domain"
)

const deviceColumns = `id, device_id, username, device_name, created_at, updated_at`

// DeviceRepository implements domain.DeviceRepository using PostgreSQL
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// Upsert creates a device or refreshes its username and name
func (r *DeviceRepository) Upsert(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO devices (device_id, username, device_name) VALUES ($1, $2, $3)
		 ON CONFLICT (device_id) DO UPDATE
		 SET username = EXCLUDED.username, device_name = EXCLUDED.device_name, updated_at = NOW()
		 RETURNING `+deviceColumns,
		deviceID, username, deviceName,
	)
	device, err := scanDevice(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, err
	}
	return device, nil
}

// GetByDeviceID retrieves a device by its client-side identifier
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	return scanDevice(row)
}

// GetByUsername retrieves a device by username
func (r *DeviceRepository) GetByUsername(ctx context.Context, username string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE username = $1`, username)
	return scanDevice(row)
}

// UpdateUsername renames a device
func (r *DeviceRepository) UpdateUsername(ctx context.Context, deviceID, username string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE devices SET username = $2, updated_at = NOW() WHERE device_id = $1 RETURNING `+deviceColumns,
		deviceID, username,
	)
	device, err := scanDevice(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, err
	}
	return device, nil
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	if err := row.Scan(&d.ID, &d.DeviceID, &d.Username, &d.DeviceName, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}
