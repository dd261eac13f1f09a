package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	// apiKeyPrefix is the prefix of generated API keys
	apiKeyPrefix = "bt_"
	// apiKeyRandomBytes is the number of random bytes in a generated key (256 bits)
	apiKeyRandomBytes = 32
)

// SettingService handles key/value settings, including the shared API key
type SettingService struct {
	settingRepo domain.SettingRepository
	publisher   websocket.EventPublisher
}

// NewSettingService creates a new SettingService
func NewSettingService(settingRepo domain.SettingRepository, publisher websocket.EventPublisher) *SettingService {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &SettingService{
		settingRepo: settingRepo,
		publisher:   publisher,
	}
}

// GetSettings returns every setting except the API key
func (s *SettingService) GetSettings(ctx context.Context) ([]*domain.Setting, error) {
	settings, err := s.settingRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]*domain.Setting, 0, len(settings))
	for _, setting := range settings {
		if setting.Key == domain.SettingAPIKey {
			continue
		}
		visible = append(visible, setting)
	}
	return visible, nil
}

// UpsertSetting creates or replaces a setting
func (s *SettingService) UpsertSetting(ctx context.Context, key, value string) (*domain.Setting, error) {
	key = strings.TrimSpace(key)
	if err := s.validate(key, value); err != nil {
		return nil, err
	}

	setting, err := s.settingRepo.Upsert(ctx, key, value)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.SettingUpdated(setting))
	return setting, nil
}

// UpdateSetting replaces the value of an existing setting
func (s *SettingService) UpdateSetting(ctx context.Context, key, value string) (*domain.Setting, error) {
	key = strings.TrimSpace(key)
	if err := s.validate(key, value); err != nil {
		return nil, err
	}

	setting, err := s.settingRepo.Update(ctx, key, value)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.SettingUpdated(setting))
	return setting, nil
}

// DefaultBudget returns the configured default budget amount
func (s *SettingService) DefaultBudget(ctx context.Context) (decimal.Decimal, error) {
	settings, err := s.settingRepo.GetAll(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.DefaultBudgetFromSettings(settings), nil
}

// EnsureAPIKey makes sure an API key is stored. A non-empty configured key
// always wins; otherwise the stored key is kept, or a new one is generated.
// The returned bool reports whether a new key was generated.
func (s *SettingService) EnsureAPIKey(ctx context.Context, configured string) (string, bool, error) {
	if configured != "" {
		if _, err := s.settingRepo.Upsert(ctx, domain.SettingAPIKey, configured); err != nil {
			return "", false, err
		}
		return configured, false, nil
	}

	existing, err := s.settingRepo.GetByKey(ctx, domain.SettingAPIKey)
	if err == nil && existing.Value != "" {
		return existing.Value, false, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", false, err
	}

	key, err := generateAPIKey()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate API key")
		return "", false, fmt.Errorf("failed to generate api key: %w", err)
	}
	if _, err := s.settingRepo.Upsert(ctx, domain.SettingAPIKey, key); err != nil {
		return "", false, err
	}

	log.Info().Msg("Generated new API key")
	return key, true, nil
}

// ValidateAPIKey checks a presented key against the stored one
func (s *SettingService) ValidateAPIKey(ctx context.Context, presented string) error {
	if presented == "" {
		return domain.ErrUnauthorized
	}

	stored, err := s.settingRepo.GetByKey(ctx, domain.SettingAPIKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored.Value), []byte(presented)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *SettingService) validate(key, value string) error {
	if key == domain.SettingAPIKey {
		return fmt.Errorf("%w: %s cannot be changed through settings", domain.ErrForbidden, domain.SettingAPIKey)
	}
	return domain.ValidateSetting(key, value)
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
