package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"tutor-backend/internal/domain"
)

const anthropicVersion = "bedrock-2023-05-31"

// bedrockAPI is the minimal Bedrock runtime interface required by Client.
// Defined here for testability.
type bedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// invokeRequest is the Anthropic messages payload accepted by Bedrock.
type invokeRequest struct {
	AnthropicVersion string               `json:"anthropic_version"`
	MaxTokens        int                  `json:"max_tokens"`
	System           string               `json:"system,omitempty"`
	Messages         []domain.ChatMessage `json:"messages"`
}

// invokeResponse is the minimal response shape returned by the model.
type invokeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Client invokes an Anthropic model through the Bedrock runtime.
type Client struct {
	api bedrockAPI
}

// New creates a Client with the given Bedrock runtime API implementation.
func New(api bedrockAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Invoke sends the system prompt and messages to the model and returns the
// text of the first content block.
func (c *Client) Invoke(ctx context.Context, modelID, system string, messages []domain.ChatMessage, maxTokens int) (string, error) {
	if modelID == "" {
		return "", errors.New("bedrock: model id must not be empty")
	}
	if len(messages) == 0 {
		return "", errors.New("bedrock: messages must not be empty")
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         messages,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: invoke model: %w", err)
	}

	var payload invokeResponse
	if err := json.Unmarshal(out.Body, &payload); err != nil {
		return "", fmt.Errorf("bedrock: decode response: %w", err)
	}
	if len(payload.Content) == 0 {
		return "", errors.New("bedrock: no content in response")
	}
	return payload.Content[0].Text, nil
}
