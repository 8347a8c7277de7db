package usecase

import (
	"context"
	"errors"
	"strings"

	"tutor-backend/internal/domain"
)

// SettingsStore is the settings persistence surface consumed by the service.
type SettingsStore interface {
	Save(ctx context.Context, deviceID string, s domain.TutorSettings) (domain.TutorSettings, string, error)
	Get(ctx context.Context, deviceID string) (domain.TutorSettings, bool, string, error)
}

// SettingsService validates requests and drives the settings repository.
type SettingsService struct {
	store SettingsStore
}

// NewSettingsService creates the settings service.
func NewSettingsService(store SettingsStore) (*SettingsService, error) {
	if store == nil {
		return nil, errors.New("usecase: settings store must not be nil")
	}
	return &SettingsService{store: store}, nil
}

type SaveSettingsInput struct {
	DeviceID string
	Settings domain.TutorSettings
}

type SaveSettingsOutput struct {
	Settings  domain.TutorSettings
	UpdatedAt string
}

func (s *SettingsService) SaveSettings(ctx context.Context, in SaveSettingsInput) (SaveSettingsOutput, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return SaveSettingsOutput{}, newError(ErrorInvalidArgument, "missing_device_id", nil)
	}

	settings, updatedAt, err := s.store.Save(ctx, deviceID, in.Settings)
	if err != nil {
		return SaveSettingsOutput{}, storeError("save_settings_error", err)
	}
	return SaveSettingsOutput{Settings: settings, UpdatedAt: updatedAt}, nil
}

type GetSettingsInput struct {
	DeviceID string
}

type GetSettingsOutput struct {
	Settings  domain.TutorSettings
	IsDefault bool
	UpdatedAt string
}

func (s *SettingsService) GetSettings(ctx context.Context, in GetSettingsInput) (GetSettingsOutput, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return GetSettingsOutput{}, newError(ErrorInvalidArgument, "missing_device_id", nil)
	}

	settings, isDefault, updatedAt, err := s.store.Get(ctx, deviceID)
	if err != nil {
		return GetSettingsOutput{}, storeError("get_settings_error", err)
	}
	return GetSettingsOutput{Settings: settings, IsDefault: isDefault, UpdatedAt: updatedAt}, nil
}
