package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"tutor-backend/internal/domain"
)

const analysisMaxTokens = 1500

// AnalysisStore persists computed analyses.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, deviceID, sessionID string, analysis domain.Analysis) error
}

// AnalysisService scores a finished conversation. Model failures degrade to
// a locally computed fallback analysis instead of failing the request.
type AnalysisService struct {
	llm    ModelInvoker
	config *PromptConfig
	store  AnalysisStore
}

// NewAnalysisService creates the analysis service.
func NewAnalysisService(llm ModelInvoker, config *PromptConfig, store AnalysisStore) (*AnalysisService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if config == nil {
		return nil, errors.New("usecase: prompt config must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: analysis store must not be nil")
	}
	return &AnalysisService{llm: llm, config: config, store: store}, nil
}

type AnalyzeInput struct {
	Messages  []domain.ChatMessage
	DeviceID  string
	SessionID string
}

type AnalyzeOutput struct {
	Analysis domain.Analysis
	// Fallback marks a locally computed analysis after a model failure.
	Fallback bool
	// Persisted reports whether the analysis record was stored. Persistence
	// is best-effort; a failed save never fails the request.
	Persisted bool
}

// Analyze scores the student's side of the conversation and stores the
// result when session coordinates are supplied.
func (s *AnalysisService) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeOutput, error) {
	if len(in.Messages) == 0 {
		return AnalyzeOutput{}, newError(ErrorInvalidArgument, "no_messages", nil)
	}

	out := AnalyzeOutput{}
	analysis, err := s.modelAnalysis(ctx, in.Messages)
	if err != nil {
		slog.Warn("model analysis failed, using fallback", "err", err)
		analysis = fallbackAnalysis(studentText(in.Messages))
		out.Fallback = true
	}
	out.Analysis = analysis

	// The fallback is a placeholder, not worth persisting.
	if !out.Fallback && in.DeviceID != "" && in.SessionID != "" {
		if err := s.store.SaveAnalysis(ctx, in.DeviceID, in.SessionID, analysis); err != nil {
			slog.Warn("analysis save failed (non-fatal)", "deviceId", in.DeviceID, "sessionId", in.SessionID, "err", err)
		} else {
			out.Persisted = true
		}
	}
	return out, nil
}

func (s *AnalysisService) modelAnalysis(ctx context.Context, messages []domain.ChatMessage) (domain.Analysis, error) {
	modelID, err := s.config.ModelID(ctx)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("load model id: %w", err)
	}

	raw, err := s.llm.Invoke(ctx, modelID, "", []domain.ChatMessage{
		{Role: domain.RoleUser, Content: analysisPrompt(conversationTranscript(messages))},
	}, analysisMaxTokens)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("invoke model: %w", err)
	}

	doc, err := extractJSONObject(raw)
	if err != nil {
		return domain.Analysis{}, err
	}
	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(doc), &analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}

// studentText joins the student's turns, lowercased, for local scanning.
func studentText(messages []domain.ChatMessage) string {
	var parts []string
	for _, m := range messages {
		if m.Role == domain.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// fallbackAnalysis builds a deterministic local analysis from the student's
// text when the model is unavailable.
func fallbackAnalysis(userText string) domain.Analysis {
	words := strings.Fields(userText)
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	fillers := findFillers(userText)

	wordCount := len(words)
	if wordCount == 0 {
		wordCount = 1
	}
	percentage := math.Round(float64(len(fillers))/float64(wordCount)*1000) / 10

	return domain.Analysis{
		CAFPScores: domain.CAFPScores{
			Complexity:    70,
			Accuracy:      75,
			Fluency:       72,
			Pronunciation: 78,
		},
		Fillers: domain.FillerStats{
			Count:      len(fillers),
			Words:      fillers,
			Percentage: percentage,
		},
		GrammarCorrections: []domain.GrammarCorrection{},
		Vocabulary: domain.VocabularyStats{
			TotalWords:     len(words),
			UniqueWords:    len(unique),
			AdvancedWords:  []string{},
			SuggestedWords: []string{},
		},
		OverallFeedback: "대화를 잘 하셨습니다! 계속 연습하시면 더 좋아질 거예요.",
		ImprovementTips: []string{
			"더 다양한 어휘를 사용해보세요",
			"문장을 조금 더 길게 만들어보세요",
			"필러 단어 사용을 줄여보세요",
		},
	}
}
