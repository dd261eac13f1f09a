package domain

import (
	"context"
	"time"
)

// Device identifies a client installation and the name shown on its transactions
type Device struct {
	ID         int32     `json:"id"`
	DeviceID   string    `json:"device_id"`
	Username   string    `json:"username"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DeviceRepository interface {
	Upsert(ctx context.Context, deviceID, username, deviceName string) (*Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	GetByUsername(ctx context.Context, username string) (*Device, error)
	UpdateUsername(ctx context.Context, deviceID, username string) (*Device, error)
}
