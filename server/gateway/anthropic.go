package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/config"
)

const maxErrorBody = 512

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Anthropic calls the Messages API directly over HTTP.
type Anthropic struct {
	client   *http.Client
	endpoint string
	apiKey   string
	version  string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

var _ Gateway = (*Anthropic)(nil)

// NewAnthropic builds a client from the llm config section. client may be
// nil to use a default http.Client.
func NewAnthropic(cfg config.LLMConfig, client *http.Client, logger *zap.Logger) *Anthropic {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anthropic{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		version:  cfg.APIVersion,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Complete implements Gateway.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if _, ok := ctx.Deadline(); !ok && a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.User}},
	})
	if err != nil {
		return "", transportError("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", transportError("build request: %v", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.version)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("read response: %v", err)
	}

	a.logger.Debug("anthropic call finished",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", transportError("provider returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", transportError("parse response: %v", err)
	}
	if parsed.Error != nil {
		return "", transportError("provider error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", transportError("provider returned no content")
	}
	return parsed.Content[0].Text, nil
}
