package ai

import (
	"context"
	"fmt"
	"sync"
)

// Message is one turn of conversational context handed to a provider.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Request carries everything a completion needs. Temperature and MaxTokens
// come straight from the config snapshot of the message being processed.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider generates a completion. Implementations do not enforce their own
// deadline; callers bound the call with a context timeout.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Factory builds a provider from per-request credentials. Credentials live
// in the admin-edited config, so providers are constructed per snapshot
// rather than once at startup.
type Factory func(apiKey, model string) Provider

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name, apiKey, model string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ai: unknown provider %q", name)
	}
	return f(apiKey, model), nil
}

// DefaultRegistry wires the two built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("gemini", func(apiKey, model string) Provider {
		return NewGeminiProvider(apiKey, model)
	})
	r.Register("openai", func(apiKey, model string) Provider {
		return NewOpenAIProvider(apiKey, model)
	})
	return r
}
