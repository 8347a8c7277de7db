package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"tutor-backend/internal/domain"
	"tutor-backend/internal/usecase"
)

type stubChat struct {
	out usecase.ChatOutput
	err error
	in  usecase.ChatInput
}

func (s *stubChat) Chat(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubSpeech struct {
	synthOut   domain.Synthesis
	synthErr   error
	transcript string
	sttErr     error
	sttIn      usecase.STTInput
}

func (s *stubSpeech) Synthesize(_ context.Context, in usecase.TTSInput) (domain.Synthesis, error) {
	return s.synthOut, s.synthErr
}

func (s *stubSpeech) Transcribe(_ context.Context, in usecase.STTInput) (string, error) {
	s.sttIn = in
	return s.transcript, s.sttErr
}

type stubAnalysis struct {
	out usecase.AnalyzeOutput
	err error
	in  usecase.AnalyzeInput
}

func (s *stubAnalysis) Analyze(_ context.Context, in usecase.AnalyzeInput) (usecase.AnalyzeOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubSessions struct {
	startOut  usecase.StartSessionOutput
	endOut    usecase.EndSessionOutput
	saveOut   usecase.SaveMessageOutput
	listOut   usecase.ListSessionsOutput
	detailOut usecase.SessionDetailOutput
	deleteOut usecase.DeleteSessionOutput
	err       error

	startIn usecase.StartSessionInput
	saveIn  usecase.SaveMessageInput
	listIn  usecase.ListSessionsInput
}

func (s *stubSessions) StartSession(_ context.Context, in usecase.StartSessionInput) (usecase.StartSessionOutput, error) {
	s.startIn = in
	return s.startOut, s.err
}

func (s *stubSessions) EndSession(_ context.Context, in usecase.EndSessionInput) (usecase.EndSessionOutput, error) {
	return s.endOut, s.err
}

func (s *stubSessions) SaveMessage(_ context.Context, in usecase.SaveMessageInput) (usecase.SaveMessageOutput, error) {
	s.saveIn = in
	return s.saveOut, s.err
}

func (s *stubSessions) ListSessions(_ context.Context, in usecase.ListSessionsInput) (usecase.ListSessionsOutput, error) {
	s.listIn = in
	return s.listOut, s.err
}

func (s *stubSessions) GetSessionDetail(_ context.Context, in usecase.SessionDetailInput) (usecase.SessionDetailOutput, error) {
	return s.detailOut, s.err
}

func (s *stubSessions) DeleteSession(_ context.Context, in usecase.DeleteSessionInput) (usecase.DeleteSessionOutput, error) {
	return s.deleteOut, s.err
}

type stubSettings struct {
	saveOut usecase.SaveSettingsOutput
	getOut  usecase.GetSettingsOutput
	err     error
}

func (s *stubSettings) SaveSettings(_ context.Context, in usecase.SaveSettingsInput) (usecase.SaveSettingsOutput, error) {
	return s.saveOut, s.err
}

func (s *stubSettings) GetSettings(_ context.Context, in usecase.GetSettingsInput) (usecase.GetSettingsOutput, error) {
	return s.getOut, s.err
}

type stubs struct {
	chat     *stubChat
	speech   *stubSpeech
	analysis *stubAnalysis
	sessions *stubSessions
	settings *stubSettings
}

func newTestHandler(t *testing.T) (*Handler, *stubs) {
	t.Helper()
	s := &stubs{
		chat:     &stubChat{},
		speech:   &stubSpeech{},
		analysis: &stubAnalysis{},
		sessions: &stubSessions{},
		settings: &stubSettings{},
	}
	h, err := NewHandler(Services{
		Chat:     s.chat,
		Speech:   s.speech,
		Analysis: s.analysis,
		Sessions: s.sessions,
		Settings: s.settings,
	})
	require.NoError(t, err)
	return h, s
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(Services{})
	require.Error(t, err)

	_, err = NewHandler(Services{Chat: &stubChat{}, Speech: &stubSpeech{}, Analysis: &stubAnalysis{}, Sessions: &stubSessions{}})
	require.Error(t, err)
}

func TestHandle_Preflight(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	require.Equal(t, "POST, OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
}

func TestHandle_UnknownAction(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"reboot"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "invalid action: reboot", out.Error)
}

func TestHandle_MissingActionDefaultsToChat(t *testing.T) {
	h, s := newTestHandler(t)
	s.chat.out = usecase.ChatOutput{Message: "Hello! How was your day?", Role: domain.RoleAssistant}

	resp, err := h.Handle(context.Background(), makeEvent(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "hi"}}, s.chat.in.Messages)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "Hello! How was your day?", out.Message)
	require.Equal(t, domain.RoleAssistant, out.Role)
}

func TestHandle_Chat_WithTranslation(t *testing.T) {
	h, s := newTestHandler(t)
	translation := "안녕하세요!"
	s.chat.out = usecase.ChatOutput{Message: "Hello!", Translation: &translation, Role: domain.RoleAssistant}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"chat","messages":[{"role":"user","content":"hi"}],"settings":{"accent":"uk"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "uk", s.chat.in.Settings.Accent)

	out := parseBody[chatResponse](t, resp.Body)
	require.NotNil(t, out.Translation)
	require.Equal(t, translation, *out.Translation)
}

func TestHandle_TTS_EncodesAudio(t *testing.T) {
	h, s := newTestHandler(t)
	s.speech.synthOut = domain.Synthesis{
		Audio:       []byte{0x01, 0x02, 0x03},
		ContentType: "audio/mpeg",
		Voice:       "Amy",
		Engine:      "neural",
	}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"tts","text":"Hello","settings":{"accent":"uk","gender":"female"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[ttsResponse](t, resp.Body)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03}), out.Audio)
	require.Equal(t, "audio/mpeg", out.ContentType)
	require.Equal(t, "Amy", out.Voice)
	require.Equal(t, "neural", out.Engine)
}

func TestHandle_STT_DecodesAudio(t *testing.T) {
	h, s := newTestHandler(t)
	s.speech.transcript = "hello world"

	audio := base64.StdEncoding.EncodeToString([]byte("webm-bytes"))
	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"stt","audio":"`+audio+`"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("webm-bytes"), s.speech.sttIn.Audio)

	out := parseBody[sttResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "hello world", out.Transcript)
}

func TestHandle_STT_RejectsMissingAudio(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"stt"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidArgument), out.Error)
}

func TestHandle_STT_RejectsBadEncoding(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"stt","audio":"%%%not-base64%%%"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_Analyze(t *testing.T) {
	h, s := newTestHandler(t)
	s.analysis.out = usecase.AnalyzeOutput{
		Analysis: domain.Analysis{CAFPScores: domain.CAFPScores{Fluency: 85}},
		Fallback: true,
	}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"analyze","messages":[{"role":"user","content":"um hello"}],"deviceId":"dev-1","sessionId":"sess-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "dev-1", s.analysis.in.DeviceID)
	require.Equal(t, "sess-1", s.analysis.in.SessionID)

	out := parseBody[analyzeResponse](t, resp.Body)
	require.True(t, out.Success)
	require.True(t, out.Fallback)
	require.Equal(t, 85, out.Analysis.CAFPScores.Fluency)
}

func TestHandle_StartSession(t *testing.T) {
	h, s := newTestHandler(t)
	s.sessions.startOut = usecase.StartSessionOutput{SessionID: "sess-1", StartedAt: "2026-08-28T10:00:00Z"}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"start_session","deviceId":"dev-1","sessionId":"sess-1","tutorName":"Gwen","settings":{"accent":"us"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "dev-1", s.sessions.startIn.DeviceID)
	require.Equal(t, "Gwen", s.sessions.startIn.TutorName)

	out := parseBody[startSessionResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "sess-1", out.SessionID)
	require.Equal(t, "2026-08-28T10:00:00Z", out.StartedAt)
}

func TestHandle_SaveMessage(t *testing.T) {
	h, s := newTestHandler(t)
	s.sessions.saveOut = usecase.SaveMessageOutput{MessageID: "MSG#2026-08-28T10:00:01Z"}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"save_message","deviceId":"dev-1","sessionId":"sess-1","message":{"role":"user","content":"hi","turnNumber":1}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", s.sessions.saveIn.Message.Content)
	require.Equal(t, 1, s.sessions.saveIn.Message.TurnNumber)

	out := parseBody[saveMessageResponse](t, resp.Body)
	require.True(t, out.Success)
	require.NotEmpty(t, out.MessageID)
}

func TestHandle_GetSessions(t *testing.T) {
	h, s := newTestHandler(t)
	s.sessions.listOut = usecase.ListSessionsOutput{
		Sessions: []domain.SessionMeta{{SessionID: "sess-2"}, {SessionID: "sess-1"}},
		HasMore:  true,
		LastKey:  "opaque-token",
	}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"get_sessions","deviceId":"dev-1","limit":2}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, s.sessions.listIn.Limit)

	out := parseBody[getSessionsResponse](t, resp.Body)
	require.Len(t, out.Sessions, 2)
	require.True(t, out.HasMore)
	require.Equal(t, "opaque-token", out.LastKey)
}

func TestHandle_GetSettings_Defaults(t *testing.T) {
	h, s := newTestHandler(t)
	s.settings.getOut = usecase.GetSettingsOutput{
		Settings:  domain.TutorSettings{Accent: "us", Gender: "female", Speed: "normal", Level: "intermediate", Topic: "business"},
		IsDefault: true,
	}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"get_settings","deviceId":"dev-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[getSettingsResponse](t, resp.Body)
	require.True(t, out.IsDefault)
	require.Nil(t, out.UpdatedAt)
	require.Equal(t, "us", out.Settings.Accent)
}

func TestHandle_MapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid argument", err: &usecase.Error{Code: usecase.ErrorInvalidArgument, Reason: "missing_device_id"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidArgument)},
		{name: "store unavailable", err: &usecase.Error{Code: usecase.ErrorStoreUnavailable, Reason: "list_sessions_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorStoreUnavailable)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "model_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream)},
		{name: "job failed", err: &usecase.Error{Code: usecase.ErrorJobFailed, Reason: "transcription_failed"}, status: http.StatusInternalServerError, code: string(usecase.ErrorJobFailed)},
		{name: "job timeout", err: &usecase.Error{Code: usecase.ErrorJobTimeout, Reason: "transcription_timeout"}, status: http.StatusInternalServerError, code: string(usecase.ErrorJobTimeout)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, s := newTestHandler(t)
			s.sessions.err = tc.err

			resp, err := h.Handle(context.Background(), makeEvent(`{"action":"get_sessions","deviceId":"dev-1"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, s := newTestHandler(t)
	s.settings.getOut = usecase.GetSettingsOutput{IsDefault: true}

	event := makeEvent(`{"action":"get_settings","deviceId":"dev-1"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	h, s := newTestHandler(t)
	s.settings.getOut = usecase.GetSettingsOutput{IsDefault: true}

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"get_settings","deviceId":"dev-1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}
