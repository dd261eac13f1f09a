package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/rs/zerolog/log"
)

// DeviceService handles device registration and usernames
type DeviceService struct {
	deviceRepo domain.DeviceRepository
	publisher  websocket.EventPublisher
}

// NewDeviceService creates a new DeviceService
func NewDeviceService(deviceRepo domain.DeviceRepository, publisher websocket.EventPublisher) *DeviceService {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &DeviceService{
		deviceRepo: deviceRepo,
		publisher:  publisher,
	}
}

// RegisterDevice creates a device or refreshes an existing registration
func (s *DeviceService) RegisterDevice(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	username = strings.TrimSpace(username)
	if deviceID == "" {
		return nil, domain.ErrDeviceIDRequired
	}
	if username == "" {
		return nil, domain.ErrUsernameRequired
	}

	device, err := s.deviceRepo.Upsert(ctx, deviceID, username, strings.TrimSpace(deviceName))
	if err != nil {
		return nil, err
	}

	log.Info().Str("device_id", deviceID).Str("username", username).Msg("Device registered")
	s.publisher.Publish(websocket.DeviceUpdated(device))
	return device, nil
}

// GetDevice retrieves a device by its client-side identifier
func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	return s.deviceRepo.GetByDeviceID(ctx, strings.TrimSpace(deviceID))
}

// UpdateUsername renames a device. Usernames are unique across devices.
func (s *DeviceService) UpdateUsername(ctx context.Context, deviceID, username string) (*domain.Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrUsernameRequired
	}

	if _, err := s.deviceRepo.GetByDeviceID(ctx, deviceID); err != nil {
		return nil, err
	}

	owner, err := s.deviceRepo.GetByUsername(ctx, username)
	switch {
	case err == nil && owner.DeviceID != deviceID:
		return nil, domain.ErrUsernameTaken
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	device, err := s.deviceRepo.UpdateUsername(ctx, deviceID, username)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.DeviceUpdated(device))
	return device, nil
}
