package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tutor-backend/internal/domain"
)

const (
	chatMaxTokens        = 300
	translationMaxTokens = 500
)

// ModelInvoker sends a prompt to a text-generation model and returns the raw
// model output.
type ModelInvoker interface {
	Invoke(ctx context.Context, modelID, system string, messages []domain.ChatMessage, maxTokens int) (string, error)
}

// ChatService produces the tutor's next conversational turn plus a Korean
// translation of it.
type ChatService struct {
	llm    ModelInvoker
	config *PromptConfig
}

// NewChatService creates the chat service.
func NewChatService(llm ModelInvoker, config *PromptConfig) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if config == nil {
		return nil, errors.New("usecase: prompt config must not be nil")
	}
	return &ChatService{llm: llm, config: config}, nil
}

type ChatInput struct {
	Messages []domain.ChatMessage
	Settings domain.TutorSettings
}

type ChatOutput struct {
	Message     string
	Translation *string
	Role        string
}

// Chat invokes the tutor model over the conversation history. The Korean
// translation of the reply is best-effort: a translation failure is logged
// and the reply is returned untranslated.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	modelID, err := s.config.ModelID(ctx)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}
	persona, err := s.config.Persona(ctx)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	system := renderPersonaPrompt(persona, in.Settings)
	messages := normalizeHistory(in.Messages)

	reply, err := s.llm.Invoke(ctx, modelID, system, messages, chatMaxTokens)
	if err != nil {
		return ChatOutput{}, newError(ErrorUpstream, "model_error", err)
	}

	var translation *string
	raw, err := s.llm.Invoke(ctx, modelID, "", []domain.ChatMessage{
		{Role: domain.RoleUser, Content: translationPrompt(reply)},
	}, translationMaxTokens)
	if err != nil {
		slog.Warn("translation failed", "err", err)
	} else if t := strings.TrimSpace(raw); t != "" {
		translation = &t
	}

	return ChatOutput{Message: reply, Translation: translation, Role: domain.RoleAssistant}, nil
}

// normalizeHistory defaults missing roles to user and seeds an opener when
// the history is empty.
func normalizeHistory(messages []domain.ChatMessage) []domain.ChatMessage {
	if len(messages) == 0 {
		return []domain.ChatMessage{{Role: domain.RoleUser, Content: defaultOpener}}
	}
	out := make([]domain.ChatMessage, len(messages))
	for i, m := range messages {
		if m.Role == "" {
			m.Role = domain.RoleUser
		}
		out[i] = m
	}
	return out
}
