package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const DefaultMaxNewTokens = 200

var (
	ErrNotInitialized = errors.New("llm: adapter not initialized")
	ErrNoBackend      = errors.New("llm: backend factory returned nil")
)

// Backend is the raw generation capability. Its output may repeat the
// prompt before the continuation.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxNewTokens int
	Temperature  float64
}

// Factory builds a Backend from config. It runs once, inside Initialize.
type Factory func(cfg Config) (Backend, error)

// Adapter returns only the continuation of a prompt. It is lazily bound
// to a backend by Initialize so nothing heavy happens at construction.
type Adapter struct {
	mu      sync.Mutex
	backend Backend
	cfg     Config
}

// NewAdapter wraps an already constructed backend.
func NewAdapter(b Backend, cfg Config) *Adapter {
	return &Adapter{backend: b, cfg: cfg}
}

// Initialize constructs the backend. Calling it again after success is a
// no-op; a failed attempt may be retried.
func (a *Adapter) Initialize(cfg Config, factory Factory) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.backend != nil {
		return nil
	}
	b, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("llm: initialize: %w", err)
	}
	if b == nil {
		return ErrNoBackend
	}
	a.backend = b
	a.cfg = cfg
	return nil
}

func (a *Adapter) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backend != nil
}

// Generate runs the backend and strips the echoed prompt. If the backend
// output does not begin with the exact prompt, it is returned whole.
func (a *Adapter) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	a.mu.Lock()
	b, cfg := a.backend, a.cfg
	a.mu.Unlock()

	if b == nil {
		return "", ErrNotInitialized
	}
	if maxNewTokens <= 0 {
		maxNewTokens = cfg.MaxNewTokens
	}
	if maxNewTokens <= 0 {
		maxNewTokens = DefaultMaxNewTokens
	}

	out, err := b.Complete(ctx, prompt, maxNewTokens)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	return StripPrompt(out, prompt), nil
}

func StripPrompt(output, prompt string) string {
	if rest, ok := strings.CutPrefix(output, prompt); ok {
		output = rest
	}
	return strings.TrimSpace(output)
}
