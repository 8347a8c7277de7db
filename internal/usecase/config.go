package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// PromptConfig lazily loads the tunable model configuration (model id and
// tutor persona template) from the parameter store on first use and caches
// it for the lifetime of the process.
type PromptConfig struct {
	params ParamGetter
	prefix string

	mu      sync.RWMutex
	loaded  bool
	modelID string
	persona string
}

// NewPromptConfig creates a PromptConfig reading parameters under the given
// prefix.
func NewPromptConfig(params ParamGetter, prefix string) (*PromptConfig, error) {
	if params == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &PromptConfig{params: params, prefix: prefix}, nil
}

// ModelID returns the Bedrock model identifier to invoke.
func (c *PromptConfig) ModelID(ctx context.Context) (string, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID, nil
}

// Persona returns the tutor persona prompt template. The template may carry
// {accent}, {level} and {topic} placeholders.
func (c *PromptConfig) Persona(ctx context.Context) (string, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persona, nil
}

func (c *PromptConfig) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	if c.loaded {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	modelID, err := c.params.GetParameter(ctx, c.prefix+"/config/model_id")
	if err != nil {
		return fmt.Errorf("usecase: load model id: %w", err)
	}
	persona, err := c.params.GetParameter(ctx, c.prefix+"/prompts/persona")
	if err != nil {
		return fmt.Errorf("usecase: load persona prompt: %w", err)
	}

	c.modelID = modelID
	c.persona = persona
	c.loaded = true
	return nil
}
