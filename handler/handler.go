package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"tutor-backend/internal/domain"
	"tutor-backend/internal/usecase"
)

// action is the closed set of operations the backend routes on. Dispatch is a
// switch over this type, so an unhandled action is a visible gap in the code
// rather than a silent nil lookup in a map.
type action string

const (
	actionChat          action = "chat"
	actionTTS           action = "tts"
	actionSTT           action = "stt"
	actionAnalyze       action = "analyze"
	actionStartSession  action = "start_session"
	actionEndSession    action = "end_session"
	actionSaveMessage   action = "save_message"
	actionGetSessions   action = "get_sessions"
	actionSessionDetail action = "get_session_detail"
	actionDeleteSession action = "delete_session"
	actionSaveSettings  action = "save_settings"
	actionGetSettings   action = "get_settings"
)

// parseAction maps the request's action field. An absent action defaults to
// chat for compatibility with older clients.
func parseAction(s string) (action, bool) {
	if s == "" {
		return actionChat, true
	}
	a := action(s)
	switch a {
	case actionChat, actionTTS, actionSTT, actionAnalyze,
		actionStartSession, actionEndSession, actionSaveMessage,
		actionGetSessions, actionSessionDetail, actionDeleteSession,
		actionSaveSettings, actionGetSettings:
		return a, true
	}
	return "", false
}

// ChatService produces the tutor's next turn.
type ChatService interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

// SpeechService handles text-to-speech and speech-to-text.
type SpeechService interface {
	Synthesize(ctx context.Context, in usecase.TTSInput) (domain.Synthesis, error)
	Transcribe(ctx context.Context, in usecase.STTInput) (string, error)
}

// AnalysisService scores a finished conversation.
type AnalysisService interface {
	Analyze(ctx context.Context, in usecase.AnalyzeInput) (usecase.AnalyzeOutput, error)
}

// SessionService drives session persistence.
type SessionService interface {
	StartSession(ctx context.Context, in usecase.StartSessionInput) (usecase.StartSessionOutput, error)
	EndSession(ctx context.Context, in usecase.EndSessionInput) (usecase.EndSessionOutput, error)
	SaveMessage(ctx context.Context, in usecase.SaveMessageInput) (usecase.SaveMessageOutput, error)
	ListSessions(ctx context.Context, in usecase.ListSessionsInput) (usecase.ListSessionsOutput, error)
	GetSessionDetail(ctx context.Context, in usecase.SessionDetailInput) (usecase.SessionDetailOutput, error)
	DeleteSession(ctx context.Context, in usecase.DeleteSessionInput) (usecase.DeleteSessionOutput, error)
}

// SettingsService drives settings persistence.
type SettingsService interface {
	SaveSettings(ctx context.Context, in usecase.SaveSettingsInput) (usecase.SaveSettingsOutput, error)
	GetSettings(ctx context.Context, in usecase.GetSettingsInput) (usecase.GetSettingsOutput, error)
}

// Services bundles everything the handler dispatches to.
type Services struct {
	Chat     ChatService
	Speech   SpeechService
	Analysis AnalysisService
	Sessions SessionService
	Settings SettingsService
}

// Handler routes API Gateway requests to the backing services.
type Handler struct {
	services Services
}

// NewHandler creates a Handler, rejecting missing dependencies.
func NewHandler(s Services) (*Handler, error) {
	if s.Chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if s.Speech == nil {
		return nil, errors.New("handler: speech service must not be nil")
	}
	if s.Analysis == nil {
		return nil, errors.New("handler: analysis service must not be nil")
	}
	if s.Sessions == nil {
		return nil, errors.New("handler: session service must not be nil")
	}
	if s.Settings == nil {
		return nil, errors.New("handler: settings service must not be nil")
	}
	return &Handler{services: s}, nil
}

// Handle routes one request by its action field.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := responseHeaders(correlationID(req.Headers))

	// CORS preflight.
	if req.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: headers}, nil
	}

	var envelope struct {
		Action string `json:"action"`
	}
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &envelope); err != nil {
			return respondError(headers, newInvalid("malformed_request_body", err)), nil
		}
	}

	act, ok := parseAction(envelope.Action)
	if !ok {
		slog.Warn("rejected unknown action", "action", envelope.Action)
		return respond(headers, http.StatusBadRequest, errorResponse{Error: "invalid action: " + envelope.Action}), nil
	}

	payload, err := h.dispatch(ctx, act, []byte(req.Body))
	if err != nil {
		slog.Error("action failed", "action", string(act), "err", err)
		return respondError(headers, err), nil
	}
	return respond(headers, http.StatusOK, payload), nil
}

func (h *Handler) dispatch(ctx context.Context, act action, body []byte) (any, error) {
	switch act {
	case actionChat:
		return h.handleChat(ctx, body)
	case actionTTS:
		return h.handleTTS(ctx, body)
	case actionSTT:
		return h.handleSTT(ctx, body)
	case actionAnalyze:
		return h.handleAnalyze(ctx, body)
	case actionStartSession:
		return h.handleStartSession(ctx, body)
	case actionEndSession:
		return h.handleEndSession(ctx, body)
	case actionSaveMessage:
		return h.handleSaveMessage(ctx, body)
	case actionGetSessions:
		return h.handleGetSessions(ctx, body)
	case actionSessionDetail:
		return h.handleSessionDetail(ctx, body)
	case actionDeleteSession:
		return h.handleDeleteSession(ctx, body)
	case actionSaveSettings:
		return h.handleSaveSettings(ctx, body)
	case actionGetSettings:
		return h.handleGetSettings(ctx, body)
	}
	return nil, newInvalid("unknown_action", nil)
}

func (h *Handler) handleChat(ctx context.Context, body []byte) (any, error) {
	req, err := decode[chatRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Chat.Chat(ctx, usecase.ChatInput{Messages: req.Messages, Settings: req.Settings})
	if err != nil {
		return nil, err
	}
	return chatResponse{Message: out.Message, Translation: out.Translation, Role: out.Role}, nil
}

func (h *Handler) handleTTS(ctx context.Context, body []byte) (any, error) {
	req, err := decode[ttsRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Speech.Synthesize(ctx, usecase.TTSInput{Text: req.Text, Settings: req.Settings})
	if err != nil {
		return nil, err
	}
	return ttsResponse{
		Audio:       base64.StdEncoding.EncodeToString(out.Audio),
		ContentType: out.ContentType,
		Voice:       out.Voice,
		Engine:      out.Engine,
	}, nil
}

func (h *Handler) handleSTT(ctx context.Context, body []byte) (any, error) {
	req, err := decode[sttRequest](body)
	if err != nil {
		return nil, err
	}
	if req.Audio == "" {
		return nil, newInvalid("no_audio", nil)
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return nil, newInvalid("invalid_audio_encoding", err)
	}
	transcript, err := h.services.Speech.Transcribe(ctx, usecase.STTInput{Audio: audio, Language: req.Language})
	if err != nil {
		return nil, err
	}
	return sttResponse{Transcript: transcript, Success: true}, nil
}

func (h *Handler) handleAnalyze(ctx context.Context, body []byte) (any, error) {
	req, err := decode[analyzeRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Analysis.Analyze(ctx, usecase.AnalyzeInput{
		Messages:  req.Messages,
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return analyzeResponse{Analysis: out.Analysis, Success: true, Fallback: out.Fallback}, nil
}

func (h *Handler) handleStartSession(ctx context.Context, body []byte) (any, error) {
	req, err := decode[startSessionRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.StartSession(ctx, usecase.StartSessionInput{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		TutorName: req.TutorName,
		Settings:  req.Settings,
	})
	if err != nil {
		return nil, err
	}
	return startSessionResponse{Success: true, SessionID: out.SessionID, StartedAt: out.StartedAt}, nil
}

func (h *Handler) handleEndSession(ctx context.Context, body []byte) (any, error) {
	req, err := decode[endSessionRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.EndSession(ctx, usecase.EndSessionInput{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Duration:  req.Duration,
		TurnCount: req.TurnCount,
		WordCount: req.WordCount,
	})
	if err != nil {
		return nil, err
	}
	return endSessionResponse{Success: true, EndedAt: out.EndedAt}, nil
}

func (h *Handler) handleSaveMessage(ctx context.Context, body []byte) (any, error) {
	req, err := decode[saveMessageRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.SaveMessage(ctx, usecase.SaveMessageInput{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		return nil, err
	}
	return saveMessageResponse{Success: true, MessageID: out.MessageID}, nil
}

func (h *Handler) handleGetSessions(ctx context.Context, body []byte) (any, error) {
	req, err := decode[getSessionsRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.ListSessions(ctx, usecase.ListSessionsInput{
		DeviceID: req.DeviceID,
		Limit:    req.Limit,
		LastKey:  req.LastKey,
	})
	if err != nil {
		return nil, err
	}
	return getSessionsResponse{Sessions: out.Sessions, HasMore: out.HasMore, LastKey: out.LastKey}, nil
}

func (h *Handler) handleSessionDetail(ctx context.Context, body []byte) (any, error) {
	req, err := decode[sessionScopedRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.GetSessionDetail(ctx, usecase.SessionDetailInput{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return sessionDetailResponse{Session: out.Session, Messages: out.Messages, Analysis: out.Analysis}, nil
}

func (h *Handler) handleDeleteSession(ctx context.Context, body []byte) (any, error) {
	req, err := decode[sessionScopedRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Sessions.DeleteSession(ctx, usecase.DeleteSessionInput{
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return deleteSessionResponse{Success: true, DeletedCount: out.DeletedCount}, nil
}

func (h *Handler) handleSaveSettings(ctx context.Context, body []byte) (any, error) {
	req, err := decode[saveSettingsRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Settings.SaveSettings(ctx, usecase.SaveSettingsInput{
		DeviceID: req.DeviceID,
		Settings: req.Settings,
	})
	if err != nil {
		return nil, err
	}
	return saveSettingsResponse{Success: true, Settings: out.Settings, UpdatedAt: out.UpdatedAt}, nil
}

func (h *Handler) handleGetSettings(ctx context.Context, body []byte) (any, error) {
	req, err := decode[getSettingsRequest](body)
	if err != nil {
		return nil, err
	}
	out, err := h.services.Settings.GetSettings(ctx, usecase.GetSettingsInput{DeviceID: req.DeviceID})
	if err != nil {
		return nil, err
	}
	resp := getSettingsResponse{Settings: out.Settings, IsDefault: out.IsDefault}
	if out.UpdatedAt != "" {
		resp.UpdatedAt = &out.UpdatedAt
	}
	return resp, nil
}

func decode[T any](body []byte) (T, error) {
	var v T
	if len(body) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, newInvalid("malformed_request_body", err)
	}
	return v, nil
}

func newInvalid(reason string, err error) error {
	return &usecase.Error{Code: usecase.ErrorInvalidArgument, Reason: reason, Err: err}
}

func responseHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"X-Correlation-Id":             correlationID,
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "x-correlation-id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(headers map[string]string, status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode response body", "err", err)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}

func respondError(headers map[string]string, err error) events.APIGatewayProxyResponse {
	status := http.StatusInternalServerError
	code := usecase.ErrorInternal

	var uerr *usecase.Error
	if errors.As(err, &uerr) {
		code = uerr.Code
		if uerr.Code == usecase.ErrorInvalidArgument {
			status = http.StatusBadRequest
		}
	}
	return respond(headers, status, errorResponse{Error: string(code)})
}
