package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/google/uuid"

	"tutor-backend/internal/domain"
)

// transcribeAPI is the minimal Transcribe interface required by Client.
type transcribeAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, in *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// s3API is the minimal S3 interface required by Client for audio staging.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client runs asynchronous speech-to-text jobs: audio is staged in S3, a
// Transcribe job is started against it, and the finished transcript is
// downloaded from the job's result URI.
type Client struct {
	transcribe transcribeAPI
	s3         s3API
	bucket     string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to download transcripts.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a Client staging audio in the given S3 bucket.
func New(t transcribeAPI, s3c s3API, bucket string, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, errors.New("transcribe: transcribe api must not be nil")
	}
	if s3c == nil {
		return nil, errors.New("transcribe: s3 api must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("transcribe: bucket must not be empty")
	}
	c := &Client{
		transcribe: t,
		s3:         s3c,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func objectKey(jobID string) string {
	return "audio/" + jobID + ".webm"
}

// Submit uploads the audio to S3 and starts a transcription job against it.
// Returns the job id used for polling, result fetch and cleanup.
func (c *Client) Submit(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("transcribe: audio must not be empty")
	}
	if language == "" {
		language = "en-US"
	}

	jobID := "stt-" + uuid.NewString()
	key := objectKey(jobID)

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/webm"),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: stage audio: %w", err)
	}

	_, err = c.transcribe.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobID),
		Media: &types.Media{
			MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", c.bucket, key)),
		},
		MediaFormat:  types.MediaFormatWebm,
		LanguageCode: types.LanguageCode(language),
		Settings: &types.Settings{
			ShowSpeakerLabels:     aws.Bool(false),
			ChannelIdentification: aws.Bool(false),
		},
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: start job: %w", err)
	}
	return jobID, nil
}

// Poll reports the current state of a transcription job.
func (c *Client) Poll(ctx context.Context, jobID string) (domain.JobStatus, error) {
	out, err := c.transcribe.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobID),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: get job: %w", err)
	}
	if out.TranscriptionJob == nil {
		return "", errors.New("transcribe: job missing from response")
	}
	switch out.TranscriptionJob.TranscriptionJobStatus {
	case types.TranscriptionJobStatusCompleted:
		return domain.JobSucceeded, nil
	case types.TranscriptionJobStatusFailed:
		return domain.JobFailed, nil
	default:
		return domain.JobRunning, nil
	}
}

// transcriptDocument is the minimal shape of the transcript JSON written by
// Transcribe.
type transcriptDocument struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

// FetchResult downloads and decodes the transcript of a completed job.
func (c *Client) FetchResult(ctx context.Context, jobID string) (string, error) {
	out, err := c.transcribe.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobID),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: get job: %w", err)
	}
	if out.TranscriptionJob == nil || out.TranscriptionJob.Transcript == nil || out.TranscriptionJob.Transcript.TranscriptFileUri == nil {
		return "", errors.New("transcribe: job has no transcript uri")
	}
	uri := *out.TranscriptionJob.Transcript.TranscriptFileUri

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe: create transcript request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: download transcript: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("transcribe: unexpected status %d downloading transcript", res.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("transcribe: read transcript: %w", err)
	}
	var doc transcriptDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("transcribe: decode transcript: %w", err)
	}
	if len(doc.Results.Transcripts) == 0 {
		return "", errors.New("transcribe: empty transcript document")
	}
	return doc.Results.Transcripts[0].Transcript, nil
}

// Cleanup removes the staged audio object and the remote job. Both deletions
// are attempted regardless of individual failures.
func (c *Client) Cleanup(ctx context.Context, jobID string) error {
	var errs []error
	if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey(jobID)),
	}); err != nil {
		errs = append(errs, fmt.Errorf("transcribe: delete audio object: %w", err))
	}
	if _, err := c.transcribe.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobID),
	}); err != nil {
		errs = append(errs, fmt.Errorf("transcribe: delete job: %w", err))
	}
	return errors.Join(errs...)
}
