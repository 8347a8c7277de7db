package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"tutor-backend/internal/domain"
)

const (
	skSettings       = "SETTINGS"
	typeUserSettings = "USER_SETTINGS"
)

var (
	validAccents = map[string]bool{"us": true, "uk": true, "au": true, "in": true}
	validGenders = map[string]bool{"male": true, "female": true}
	validSpeeds  = map[string]bool{"slow": true, "normal": true, "fast": true}
	validLevels  = map[string]bool{"beginner": true, "intermediate": true, "advanced": true}
	validTopics  = map[string]bool{"business": true, "daily": true, "travel": true, "interview": true}
)

// DefaultSettings returns the documented tutor settings defaults.
func DefaultSettings() domain.TutorSettings {
	return domain.TutorSettings{
		Accent: "us",
		Gender: "female",
		Speed:  "normal",
		Level:  "intermediate",
		Topic:  "business",
	}
}

// ValidateSettings replaces every unrecognized field value with its default.
// It never fails; the result is always a complete, valid settings object.
func ValidateSettings(s domain.TutorSettings) domain.TutorSettings {
	out := DefaultSettings()
	if validAccents[s.Accent] {
		out.Accent = s.Accent
	}
	if validGenders[s.Gender] {
		out.Gender = s.Gender
	}
	if validSpeeds[s.Speed] {
		out.Speed = s.Speed
	}
	if validLevels[s.Level] {
		out.Level = s.Level
	}
	if validTopics[s.Topic] {
		out.Topic = s.Topic
	}
	return out
}

type userSettingsRecord struct {
	Key
	Type     string `dynamodbav:"type"`
	DeviceID string `dynamodbav:"deviceId"`
	domain.TutorSettings
	UpdatedAt string `dynamodbav:"updatedAt"`
	CreatedAt string `dynamodbav:"createdAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

// Settings persists the single tutor-settings record per device.
type Settings struct {
	store *Store
}

// NewSettings creates the settings repository.
func NewSettings(store *Store) (*Settings, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	return &Settings{store: store}, nil
}

// Save validates then upserts the settings record for a device. Returns the
// validated settings and the update timestamp.
func (r *Settings) Save(ctx context.Context, deviceID string, s domain.TutorSettings) (domain.TutorSettings, string, error) {
	if deviceID == "" {
		return domain.TutorSettings{}, "", fmt.Errorf("%w: deviceId is required", ErrInvalidKey)
	}

	validated := ValidateSettings(s)
	now := time.Now()
	updatedAt := isoTime(now)
	rec := userSettingsRecord{
		Key:           Key{PK: devicePK(deviceID), SK: skSettings},
		Type:          typeUserSettings,
		DeviceID:      deviceID,
		TutorSettings: validated,
		UpdatedAt:     updatedAt,
		CreatedAt:     updatedAt,
		TTL:           ttlValue(now),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return domain.TutorSettings{}, "", fmt.Errorf("repository: Save settings marshal: %w", err)
	}
	if err := r.store.Put(ctx, item); err != nil {
		return domain.TutorSettings{}, "", fmt.Errorf("repository: Save settings: %w", err)
	}
	return validated, updatedAt, nil
}

// Get returns the stored settings for a device, or the defaults with
// isDefault=true when no record exists. The update timestamp is empty for
// defaults.
func (r *Settings) Get(ctx context.Context, deviceID string) (domain.TutorSettings, bool, string, error) {
	if deviceID == "" {
		return domain.TutorSettings{}, false, "", fmt.Errorf("%w: deviceId is required", ErrInvalidKey)
	}

	item, err := r.store.Get(ctx, Key{PK: devicePK(deviceID), SK: skSettings})
	if err != nil {
		return domain.TutorSettings{}, false, "", fmt.Errorf("repository: Get settings: %w", err)
	}
	if item == nil {
		return DefaultSettings(), true, "", nil
	}

	var rec userSettingsRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return domain.TutorSettings{}, false, "", fmt.Errorf("repository: Get settings unmarshal: %w", err)
	}
	// Stored records predating a new field fall back to its default.
	return ValidateSettings(rec.TutorSettings), false, rec.UpdatedAt, nil
}
