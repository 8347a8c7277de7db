package usecase

import (
	"context"
	"errors"
	"strings"

	"tutor-backend/internal/domain"
	"tutor-backend/internal/repository"
)

// defaultTutorName is used when the client does not name a tutor.
const defaultTutorName = "Gwen"

// SessionStore is the session persistence surface consumed by the service.
type SessionStore interface {
	StartSession(ctx context.Context, deviceID, sessionID, tutorName string, settings domain.TutorSettings) (domain.SessionMeta, error)
	EndSession(ctx context.Context, deviceID, sessionID string, duration, turnCount, wordCount int) (string, error)
	SaveMessage(ctx context.Context, deviceID, sessionID string, msg domain.Message) (string, error)
	ListSessions(ctx context.Context, deviceID string, limit int, startToken string) ([]domain.SessionMeta, string, bool, error)
	GetSessionDetail(ctx context.Context, deviceID, sessionID string) (*domain.SessionMeta, []domain.Message, *domain.Analysis, error)
	DeleteSession(ctx context.Context, deviceID, sessionID string) (int, error)
}

// SessionService validates requests and drives the session repository.
type SessionService struct {
	store SessionStore
}

// NewSessionService creates the session service.
func NewSessionService(store SessionStore) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	return &SessionService{store: store}, nil
}

type StartSessionInput struct {
	DeviceID  string
	SessionID string
	TutorName string
	Settings  domain.TutorSettings
}

type StartSessionOutput struct {
	SessionID string
	StartedAt string
}

func (s *SessionService) StartSession(ctx context.Context, in StartSessionInput) (StartSessionOutput, error) {
	deviceID, sessionID, err := requireIDs(in.DeviceID, in.SessionID)
	if err != nil {
		return StartSessionOutput{}, err
	}
	tutorName := strings.TrimSpace(in.TutorName)
	if tutorName == "" {
		tutorName = defaultTutorName
	}

	meta, err := s.store.StartSession(ctx, deviceID, sessionID, tutorName, in.Settings)
	if err != nil {
		return StartSessionOutput{}, storeError("start_session_error", err)
	}
	return StartSessionOutput{SessionID: meta.SessionID, StartedAt: meta.StartedAt}, nil
}

type EndSessionInput struct {
	DeviceID  string
	SessionID string
	Duration  int
	TurnCount int
	WordCount int
}

type EndSessionOutput struct {
	EndedAt string
}

func (s *SessionService) EndSession(ctx context.Context, in EndSessionInput) (EndSessionOutput, error) {
	deviceID, sessionID, err := requireIDs(in.DeviceID, in.SessionID)
	if err != nil {
		return EndSessionOutput{}, err
	}

	endedAt, err := s.store.EndSession(ctx, deviceID, sessionID, in.Duration, in.TurnCount, in.WordCount)
	if err != nil {
		return EndSessionOutput{}, storeError("end_session_error", err)
	}
	return EndSessionOutput{EndedAt: endedAt}, nil
}

type SaveMessageInput struct {
	DeviceID  string
	SessionID string
	Message   domain.Message
}

type SaveMessageOutput struct {
	MessageID string
}

func (s *SessionService) SaveMessage(ctx context.Context, in SaveMessageInput) (SaveMessageOutput, error) {
	deviceID, sessionID, err := requireIDs(in.DeviceID, in.SessionID)
	if err != nil {
		return SaveMessageOutput{}, err
	}
	if in.Message.Role == "" || in.Message.Content == "" {
		return SaveMessageOutput{}, newError(ErrorInvalidArgument, "missing_message_fields", nil)
	}
	if in.Message.TurnNumber < 0 {
		return SaveMessageOutput{}, newError(ErrorInvalidArgument, "negative_turn_number", nil)
	}

	id, err := s.store.SaveMessage(ctx, deviceID, sessionID, in.Message)
	if err != nil {
		return SaveMessageOutput{}, storeError("save_message_error", err)
	}
	return SaveMessageOutput{MessageID: id}, nil
}

type ListSessionsInput struct {
	DeviceID string
	Limit    int
	LastKey  string
}

type ListSessionsOutput struct {
	Sessions []domain.SessionMeta
	HasMore  bool
	LastKey  string
}

func (s *SessionService) ListSessions(ctx context.Context, in ListSessionsInput) (ListSessionsOutput, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return ListSessionsOutput{}, newError(ErrorInvalidArgument, "missing_device_id", nil)
	}

	sessions, lastKey, hasMore, err := s.store.ListSessions(ctx, deviceID, in.Limit, in.LastKey)
	if err != nil {
		return ListSessionsOutput{}, storeError("list_sessions_error", err)
	}
	return ListSessionsOutput{Sessions: sessions, HasMore: hasMore, LastKey: lastKey}, nil
}

type SessionDetailInput struct {
	DeviceID  string
	SessionID string
}

type SessionDetailOutput struct {
	Session  *domain.SessionMeta
	Messages []domain.Message
	Analysis *domain.Analysis
}

func (s *SessionService) GetSessionDetail(ctx context.Context, in SessionDetailInput) (SessionDetailOutput, error) {
	deviceID, sessionID, err := requireIDs(in.DeviceID, in.SessionID)
	if err != nil {
		return SessionDetailOutput{}, err
	}

	meta, messages, analysis, err := s.store.GetSessionDetail(ctx, deviceID, sessionID)
	if err != nil {
		return SessionDetailOutput{}, storeError("session_detail_error", err)
	}
	return SessionDetailOutput{Session: meta, Messages: messages, Analysis: analysis}, nil
}

type DeleteSessionInput struct {
	DeviceID  string
	SessionID string
}

type DeleteSessionOutput struct {
	DeletedCount int
}

func (s *SessionService) DeleteSession(ctx context.Context, in DeleteSessionInput) (DeleteSessionOutput, error) {
	deviceID, sessionID, err := requireIDs(in.DeviceID, in.SessionID)
	if err != nil {
		return DeleteSessionOutput{}, err
	}

	count, err := s.store.DeleteSession(ctx, deviceID, sessionID)
	if err != nil {
		return DeleteSessionOutput{}, storeError("delete_session_error", err)
	}
	return DeleteSessionOutput{DeletedCount: count}, nil
}

func requireIDs(deviceID, sessionID string) (string, string, error) {
	deviceID = strings.TrimSpace(deviceID)
	sessionID = strings.TrimSpace(sessionID)
	if deviceID == "" || sessionID == "" {
		return "", "", newError(ErrorInvalidArgument, "missing_device_or_session_id", nil)
	}
	return deviceID, sessionID, nil
}

// storeError classifies repository failures: key/token validation problems
// are the caller's fault, everything else is a backend outage.
func storeError(reason string, err error) *Error {
	if errors.Is(err, repository.ErrInvalidKey) {
		return newError(ErrorInvalidArgument, reason, err)
	}
	return newError(ErrorStoreUnavailable, reason, err)
}
