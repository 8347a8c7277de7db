package repository

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"

	"tutor-backend/internal/domain"
)

func newTestSettings(t *testing.T, api dynamodbAPI) *Settings {
	t.Helper()
	r, err := NewSettings(newTestStore(t, api))
	require.NoError(t, err)
	return r
}

func TestValidateSettings_FieldWiseFallback(t *testing.T) {
	cases := []struct {
		name string
		in   domain.TutorSettings
		want domain.TutorSettings
	}{
		{
			name: "all valid",
			in:   domain.TutorSettings{Accent: "uk", Gender: "male", Speed: "fast", Level: "advanced", Topic: "travel"},
			want: domain.TutorSettings{Accent: "uk", Gender: "male", Speed: "fast", Level: "advanced", Topic: "travel"},
		},
		{
			name: "empty gets defaults",
			in:   domain.TutorSettings{},
			want: DefaultSettings(),
		},
		{
			name: "only bad fields replaced",
			in:   domain.TutorSettings{Accent: "fr", Gender: "male", Speed: "turbo", Level: "advanced", Topic: "sports"},
			want: domain.TutorSettings{Accent: "us", Gender: "male", Speed: "normal", Level: "advanced", Topic: "business"},
		},
		{
			name: "case sensitive",
			in:   domain.TutorSettings{Accent: "UK", Gender: "Female", Speed: "NORMAL", Level: "beginner", Topic: "daily"},
			want: domain.TutorSettings{Accent: "us", Gender: "female", Speed: "normal", Level: "beginner", Topic: "daily"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ValidateSettings(tc.in))
		})
	}
}

func TestSaveSettings_ValidatesBeforeWriting(t *testing.T) {
	var put *dynamodb.PutItemInput
	r := newTestSettings(t, &fakeDynamo{
		putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			put = in
			return &dynamodb.PutItemOutput{}, nil
		},
	})

	saved, updatedAt, err := r.Save(context.Background(), "dev-1", domain.TutorSettings{Accent: "au", Speed: "warp"})
	require.NoError(t, err)
	require.NotEmpty(t, updatedAt)
	require.Equal(t, "au", saved.Accent)
	require.Equal(t, "normal", saved.Speed)

	require.Equal(t, "DEVICE#dev-1", strAttrOr(put.Item, "PK"))
	require.Equal(t, skSettings, strAttrOr(put.Item, "SK"))
	require.Equal(t, typeUserSettings, strAttrOr(put.Item, "type"))
	require.Equal(t, "au", strAttrOr(put.Item, "accent"))
	require.Contains(t, put.Item, "ttl")
}

func TestSaveSettings_RequiresDeviceID(t *testing.T) {
	r := newTestSettings(t, &fakeDynamo{})

	_, _, err := r.Save(context.Background(), "", DefaultSettings())
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestGetSettings_ReturnsDefaultsWhenAbsent(t *testing.T) {
	r := newTestSettings(t, &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	})

	settings, isDefault, updatedAt, err := r.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	require.True(t, isDefault)
	require.Empty(t, updatedAt)
	require.Equal(t, DefaultSettings(), settings)
}

func TestGetSettings_ReturnsStoredRecord(t *testing.T) {
	item, err := attributevalue.MarshalMap(userSettingsRecord{
		Key:           Key{PK: "DEVICE#dev-1", SK: skSettings},
		Type:          typeUserSettings,
		DeviceID:      "dev-1",
		TutorSettings: domain.TutorSettings{Accent: "in", Gender: "male", Speed: "slow", Level: "beginner", Topic: "interview"},
		UpdatedAt:     "2026-08-28T09:00:00Z",
	})
	require.NoError(t, err)

	r := newTestSettings(t, &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: item}, nil
		},
	})

	settings, isDefault, updatedAt, err := r.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	require.False(t, isDefault)
	require.Equal(t, "2026-08-28T09:00:00Z", updatedAt)
	require.Equal(t, "in", settings.Accent)
	require.Equal(t, "interview", settings.Topic)
}

func TestGetSettings_RevalidatesStaleRecord(t *testing.T) {
	item, err := attributevalue.MarshalMap(userSettingsRecord{
		Key:           Key{PK: "DEVICE#dev-1", SK: skSettings},
		Type:          typeUserSettings,
		TutorSettings: domain.TutorSettings{Accent: "de"},
	})
	require.NoError(t, err)

	r := newTestSettings(t, &fakeDynamo{
		getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: item}, nil
		},
	})

	settings, isDefault, _, err := r.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	require.False(t, isDefault)
	require.Equal(t, DefaultSettings(), settings)
}
