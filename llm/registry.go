package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/registry"
)

// Registry holds named Provider instances, constructed once from
// config.Config.LLMs at startup, mirroring llms/registry.go's
// LLMRegistry wrapping registry.BaseRegistry.
type Registry struct {
	base *registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Provider]()}
}

// LoadFromConfig constructs a Provider for every configured LLM and
// registers it under its config key.
func (r *Registry) LoadFromConfig(ctx context.Context, cfgs map[string]config.LLMConfig) error {
	for name, c := range cfgs {
		p, err := NewProviderFromConfig(ctx, c)
		if err != nil {
			return fmt.Errorf("llm registry: %q: %w", name, err)
		}
		if err := r.base.Register(name, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) { return r.base.Get(name) }
func (r *Registry) List() []string                    { return r.base.List() }

// Register adds or overrides a single named Provider, for callers that
// construct providers themselves rather than going through
// LoadFromConfig (and for tests).
func (r *Registry) Register(name string, p Provider) error { return r.base.Register(name, p) }

// NewProviderFromConfig dispatches on config.LLMConfig.Type, mirroring
// llms/registry.go's CreateLLMFromConfig switch.
func NewProviderFromConfig(ctx context.Context, c config.LLMConfig) (Provider, error) {
	switch c.Type {
	case "ollama":
		return NewOllamaProvider(c.Host, c.Model, time.Duration(c.TimeoutSec)*time.Second), nil
	case "openai":
		return NewOpenAIProvider(c.APIKey, c.Host, c.Model), nil
	case "gemini":
		return NewGeminiProvider(ctx, c.APIKey, c.Model)
	default:
		return nil, fmt.Errorf("llm: unsupported provider type %q", c.Type)
	}
}
