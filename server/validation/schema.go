package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/karimd18/project-C-case-study/server/pipeline"
)

// GenerateRequest is the body of /api/analyze and /api/generate.
type GenerateRequest struct {
	RawText   string `json:"rawText" validate:"required"`
	SessionID string `json:"sessionId,omitempty"`
}

func (r *GenerateRequest) InputText() string { return r.RawText }

// RenderRequest is the body of /api/render.
type RenderRequest struct {
	Strategy  *pipeline.Strategy `json:"strategy" validate:"required"`
	RawText   string             `json:"rawText" validate:"required"`
	SessionID string             `json:"sessionId,omitempty"`
}

func (r *RenderRequest) InputText() string { return r.RawText }

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
	UserID string `json:"userId,omitempty"`
	Title  string `json:"title,omitempty" validate:"omitempty,max=200"`
}

// RenameChatRequest is the body of PUT /api/chats/{id}.
type RenameChatRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// CredentialsRequest is the body of /auth/register and /auth/login.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// TokenCounter bounds the size of user input sent to the model.
type TokenCounter struct {
	encoding Tokenizer
	max      int
}

// NewTokenCounter creates a counter for a tiktoken encoding such as
// "cl100k_base".
func NewTokenCounter(encoding string, maxTokens int) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %v", encoding, err)
	}
	return NewTokenCounterWithTokenizer(&tiktokenWrapper{enc}, maxTokens)
}

// NewTokenCounterWithTokenizer creates a counter over any Tokenizer.
func NewTokenCounterWithTokenizer(tok Tokenizer, maxTokens int) (*TokenCounter, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("invalid max input tokens: must be greater than 0")
	}
	return &TokenCounter{encoding: tok, max: maxTokens}, nil
}

// CountTokens returns the token count of text.
func (tc *TokenCounter) CountTokens(text string) int {
	return tc.encoding.CountTokens(text)
}

// ValidateTokens checks text against the limit.
func (tc *TokenCounter) ValidateTokens(text string) error {
	if n := tc.CountTokens(text); n > tc.max {
		return fmt.Errorf("input has %d tokens, limit is %d", n, tc.max)
	}
	return nil
}

// Max returns the configured limit.
func (tc *TokenCounter) Max() int {
	return tc.max
}
