package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awspolly "github.com/aws/aws-sdk-go-v2/service/polly"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	awstranscribe "github.com/aws/aws-sdk-go-v2/service/transcribe"

	"tutor-backend/handler"
	"tutor-backend/internal/integrations/bedrock"
	"tutor-backend/internal/integrations/paramstore"
	"tutor-backend/internal/integrations/polly"
	"tutor-backend/internal/integrations/transcribe"
	"tutor-backend/internal/repository"
	"tutor-backend/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	stateIndex := envOr("STATE_TABLE_GSI", "GSI1")
	audioBucket := mustEnv("AUDIO_BUCKET")
	paramPrefix := mustEnv("PARAM_PREFIX")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.NewStore(awsdynamodb.NewFromConfig(cfg), stateTable, stateIndex)
	if err != nil {
		slog.Error("failed to create state store", "err", err)
		os.Exit(1)
	}
	sessions, err := repository.NewSessions(store)
	if err != nil {
		slog.Error("failed to create session repository", "err", err)
		os.Exit(1)
	}
	settings, err := repository.NewSettings(store)
	if err != nil {
		slog.Error("failed to create settings repository", "err", err)
		os.Exit(1)
	}

	llm, err := bedrock.New(awsbedrock.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create Bedrock client", "err", err)
		os.Exit(1)
	}
	tts, err := polly.New(awspolly.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create Polly client", "err", err)
		os.Exit(1)
	}
	stt, err := transcribe.New(awstranscribe.NewFromConfig(cfg), awss3.NewFromConfig(cfg), audioBucket)
	if err != nil {
		slog.Error("failed to create Transcribe client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	promptConfig, err := usecase.NewPromptConfig(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create prompt config", "err", err)
		os.Exit(1)
	}
	chatService, err := usecase.NewChatService(llm, promptConfig)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	speechService, err := usecase.NewSpeechService(tts, stt)
	if err != nil {
		slog.Error("failed to create speech service", "err", err)
		os.Exit(1)
	}
	analysisService, err := usecase.NewAnalysisService(llm, promptConfig, sessions)
	if err != nil {
		slog.Error("failed to create analysis service", "err", err)
		os.Exit(1)
	}
	sessionService, err := usecase.NewSessionService(sessions)
	if err != nil {
		slog.Error("failed to create session service", "err", err)
		os.Exit(1)
	}
	settingsService, err := usecase.NewSettingsService(settings)
	if err != nil {
		slog.Error("failed to create settings service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(handler.Services{
		Chat:     chatService,
		Speech:   speechService,
		Analysis: analysisService,
		Sessions: sessionService,
		Settings: settingsService,
	})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
