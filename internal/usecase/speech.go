package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tutor-backend/internal/domain"
)

const (
	defaultPollAttempts = 30
	defaultPollInterval = time.Second
	defaultLanguage     = "en-US"
)

// SpeechSynthesizer renders text as audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, accent, gender string) (domain.Synthesis, error)
}

// TranscriptionJobRunner is the asynchronous speech-to-text capability:
// submit a job, poll it to a terminal state, fetch the transcript, and
// release the remote resources.
type TranscriptionJobRunner interface {
	Submit(ctx context.Context, audio []byte, language string) (string, error)
	Poll(ctx context.Context, jobID string) (domain.JobStatus, error)
	FetchResult(ctx context.Context, jobID string) (string, error)
	Cleanup(ctx context.Context, jobID string) error
}

// SpeechService handles text-to-speech and speech-to-text. Transcription is
// the only blocking multi-step operation in the backend: it polls the remote
// job with fixed spacing up to a bounded number of attempts.
type SpeechService struct {
	tts SpeechSynthesizer
	stt TranscriptionJobRunner

	pollAttempts int
	pollInterval time.Duration
}

// NewSpeechService creates the speech service with the default polling
// budget (30 attempts, 1s apart).
func NewSpeechService(tts SpeechSynthesizer, stt TranscriptionJobRunner) (*SpeechService, error) {
	if tts == nil {
		return nil, errors.New("usecase: synthesizer must not be nil")
	}
	if stt == nil {
		return nil, errors.New("usecase: transcription runner must not be nil")
	}
	return &SpeechService{
		tts:          tts,
		stt:          stt,
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
	}, nil
}

type TTSInput struct {
	Text     string
	Settings domain.TutorSettings
}

// Synthesize renders the tutor's reply as audio using the configured voice.
func (s *SpeechService) Synthesize(ctx context.Context, in TTSInput) (domain.Synthesis, error) {
	if in.Text == "" {
		return domain.Synthesis{}, newError(ErrorInvalidArgument, "empty_text", nil)
	}
	out, err := s.tts.Synthesize(ctx, in.Text, in.Settings.Accent, in.Settings.Gender)
	if err != nil {
		return domain.Synthesis{}, newError(ErrorUpstream, "tts_error", err)
	}
	return out, nil
}

type STTInput struct {
	Audio    []byte
	Language string
}

// Transcribe submits the audio for transcription and polls the job to a
// terminal state. On success the transcript is fetched and cleanup always
// runs, even when the fetch fails, so remote resources are never leaked. A
// job that fails aborts with JOB_FAILED; one that never terminates within
// the polling budget aborts with JOB_TIMEOUT.
func (s *SpeechService) Transcribe(ctx context.Context, in STTInput) (string, error) {
	if len(in.Audio) == 0 {
		return "", newError(ErrorInvalidArgument, "no_audio", nil)
	}
	language := in.Language
	if language == "" {
		language = defaultLanguage
	}

	jobID, err := s.stt.Submit(ctx, in.Audio, language)
	if err != nil {
		return "", newError(ErrorUpstream, "stt_submit_error", err)
	}

	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		status, err := s.stt.Poll(ctx, jobID)
		if err != nil {
			return "", newError(ErrorUpstream, "stt_poll_error", err)
		}

		switch status {
		case domain.JobSucceeded:
			transcript, fetchErr := s.stt.FetchResult(ctx, jobID)
			if cleanupErr := s.stt.Cleanup(ctx, jobID); cleanupErr != nil {
				slog.Warn("transcription cleanup failed", "jobId", jobID, "err", cleanupErr)
			}
			if fetchErr != nil {
				return "", newError(ErrorUpstream, "stt_result_error", fetchErr)
			}
			return transcript, nil
		case domain.JobFailed:
			return "", newError(ErrorJobFailed, "transcription_failed", nil)
		}

		select {
		case <-ctx.Done():
			return "", newError(ErrorInternal, "stt_wait_interrupted", ctx.Err())
		case <-time.After(s.pollInterval):
		}
	}
	return "", newError(ErrorJobTimeout, "transcription_timeout", nil)
}
