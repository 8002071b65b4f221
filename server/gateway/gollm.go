package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teilomillet/gollm"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/config"
)

// LLMFactory builds a gollm client for a model and output budget.
type LLMFactory func(model string, maxTokens int) (gollm.LLM, error)

// NewGollmFactory returns a factory creating clients for the configured
// provider. gollm's own retries are disabled.
func NewGollmFactory(cfg config.LLMConfig) LLMFactory {
	return func(model string, maxTokens int) (gollm.LLM, error) {
		llm, err := gollm.NewLLM(
			gollm.SetProvider(cfg.Provider),
			gollm.SetModel(model),
			gollm.SetAPIKey(cfg.APIKey),
			gollm.SetMaxTokens(maxTokens),
			gollm.SetMaxRetries(0),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		return llm, nil
	}
}

type llmKey struct {
	model     string
	maxTokens int
}

// Gollm sends requests through a gollm.LLM. One client is kept per
// (model, budget) pair.
type Gollm struct {
	factory LLMFactory
	model   string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[llmKey]gollm.LLM
}

var _ Gateway = (*Gollm)(nil)

// NewGollm creates the gollm-backed gateway.
func NewGollm(cfg config.LLMConfig, factory LLMFactory, logger *zap.Logger) *Gollm {
	if factory == nil {
		factory = NewGollmFactory(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gollm{
		factory: factory,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
		clients: make(map[llmKey]gollm.LLM),
	}
}

func (g *Gollm) client(model string, maxTokens int) (gollm.LLM, error) {
	key := llmKey{model: model, maxTokens: maxTokens}

	g.mu.Lock()
	defer g.mu.Unlock()
	if llm, ok := g.clients[key]; ok {
		return llm, nil
	}
	llm, err := g.factory(model, maxTokens)
	if err != nil {
		return nil, err
	}
	g.clients[key] = llm
	return llm, nil
}

// Complete implements Gateway.
func (g *Gollm) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if _, ok := ctx.Deadline(); !ok && g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = g.model
	}
	llm, err := g.client(model, req.MaxTokens)
	if err != nil {
		return "", transportError("%v", err)
	}

	prompt := &gollm.Prompt{Messages: make([]gollm.PromptMessage, 0, 2)}
	if req.System != "" {
		prompt.Messages = append(prompt.Messages, gollm.PromptMessage{Role: "system", Content: req.System})
	}
	prompt.Messages = append(prompt.Messages, gollm.PromptMessage{Role: "user", Content: req.User})

	start := time.Now()
	text, err := llm.Generate(ctx, prompt)
	g.logger.Debug("gollm call finished",
		zap.String("provider", llm.GetProvider()),
		zap.String("model", model),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	if err != nil {
		return "", transportError("%s generate: %v", llm.GetProvider(), err)
	}
	if text == "" {
		return "", transportError("%s returned no content", llm.GetProvider())
	}
	return text, nil
}
