package polly

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"tutor-backend/internal/domain"
)

// pollyAPI is the minimal Polly interface required by Client.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type voiceKey struct {
	accent string
	gender string
}

type voice struct {
	id     types.VoiceId
	engine types.Engine
}

// Neural voices where available per accent; the Indian English voice pool
// only has Aditi, used for both genders.
var voiceTable = map[voiceKey]voice{
	{"us", "female"}: {types.VoiceIdJoanna, types.EngineNeural},
	{"us", "male"}:   {types.VoiceIdMatthew, types.EngineNeural},
	{"uk", "female"}: {types.VoiceIdAmy, types.EngineNeural},
	{"uk", "male"}:   {types.VoiceIdBrian, types.EngineNeural},
	{"au", "female"}: {types.VoiceIdNicole, types.EngineStandard},
	{"au", "male"}:   {types.VoiceIdRussell, types.EngineStandard},
	{"in", "female"}: {types.VoiceIdAditi, types.EngineStandard},
	{"in", "male"}:   {types.VoiceIdAditi, types.EngineStandard},
}

func voiceFor(accent, gender string) voice {
	if v, ok := voiceTable[voiceKey{accent, gender}]; ok {
		return v
	}
	return voice{types.VoiceIdJoanna, types.EngineNeural}
}

// Client synthesizes speech through Amazon Polly.
type Client struct {
	api pollyAPI
}

// New creates a Client with the given Polly API implementation.
func New(api pollyAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("polly: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Synthesize renders text as MP3 audio using the voice mapped from the
// accent and gender settings.
func (c *Client) Synthesize(ctx context.Context, text, accent, gender string) (domain.Synthesis, error) {
	if text == "" {
		return domain.Synthesis{}, errors.New("polly: text must not be empty")
	}

	v := voiceFor(accent, gender)
	out, err := c.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         &text,
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      v.id,
		Engine:       v.engine,
	})
	if err != nil {
		return domain.Synthesis{}, fmt.Errorf("polly: synthesize speech: %w", err)
	}
	defer func() { _ = out.AudioStream.Close() }()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return domain.Synthesis{}, fmt.Errorf("polly: read audio stream: %w", err)
	}
	return domain.Synthesis{
		Audio:       audio,
		ContentType: "audio/mpeg",
		Voice:       string(v.id),
		Engine:      string(v.engine),
	}, nil
}
