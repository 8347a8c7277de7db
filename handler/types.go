package handler

import (
	"tutor-backend/internal/domain"
)

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
	Settings domain.TutorSettings `json:"settings"`
}

type chatResponse struct {
	Message     string  `json:"message"`
	Translation *string `json:"translation"`
	Role        string  `json:"role"`
}

type ttsRequest struct {
	Text     string               `json:"text"`
	Settings domain.TutorSettings `json:"settings"`
}

type ttsResponse struct {
	Audio       string `json:"audio"`
	ContentType string `json:"contentType"`
	Voice       string `json:"voice"`
	Engine      string `json:"engine"`
}

type sttRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language"`
}

type sttResponse struct {
	Transcript string `json:"transcript"`
	Success    bool   `json:"success"`
}

type analyzeRequest struct {
	Messages  []domain.ChatMessage `json:"messages"`
	DeviceID  string               `json:"deviceId"`
	SessionID string               `json:"sessionId"`
}

type analyzeResponse struct {
	Analysis domain.Analysis `json:"analysis"`
	Success  bool            `json:"success"`
	Fallback bool            `json:"fallback,omitempty"`
}

type startSessionRequest struct {
	DeviceID  string               `json:"deviceId"`
	SessionID string               `json:"sessionId"`
	TutorName string               `json:"tutorName"`
	Settings  domain.TutorSettings `json:"settings"`
}

type startSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	StartedAt string `json:"startedAt"`
}

type endSessionRequest struct {
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
	Duration  int    `json:"duration"`
	TurnCount int    `json:"turnCount"`
	WordCount int    `json:"wordCount"`
}

type endSessionResponse struct {
	Success bool   `json:"success"`
	EndedAt string `json:"endedAt"`
}

type saveMessageRequest struct {
	DeviceID  string         `json:"deviceId"`
	SessionID string         `json:"sessionId"`
	Message   domain.Message `json:"message"`
}

type saveMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type getSessionsRequest struct {
	DeviceID string `json:"deviceId"`
	Limit    int    `json:"limit"`
	LastKey  string `json:"lastKey"`
}

type getSessionsResponse struct {
	Sessions []domain.SessionMeta `json:"sessions"`
	HasMore  bool                 `json:"hasMore"`
	LastKey  string               `json:"lastKey,omitempty"`
}

// sessionScopedRequest addresses one session (detail and delete).
type sessionScopedRequest struct {
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
}

type sessionDetailResponse struct {
	Session  *domain.SessionMeta `json:"session"`
	Messages []domain.Message    `json:"messages"`
	Analysis *domain.Analysis    `json:"analysis"`
}

type deleteSessionResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}

type saveSettingsRequest struct {
	DeviceID string               `json:"deviceId"`
	Settings domain.TutorSettings `json:"settings"`
}

type saveSettingsResponse struct {
	Success   bool                 `json:"success"`
	Settings  domain.TutorSettings `json:"settings"`
	UpdatedAt string               `json:"updatedAt"`
}

type getSettingsRequest struct {
	DeviceID string `json:"deviceId"`
}

type getSettingsResponse struct {
	Settings  domain.TutorSettings `json:"settings"`
	IsDefault bool                 `json:"isDefault"`
	UpdatedAt *string              `json:"updatedAt,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
