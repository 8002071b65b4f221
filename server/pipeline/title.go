package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/server/gateway"
	"github.com/karimd18/project-C-case-study/store"
)

const titleInstruction = "Summarize this request into a short, punchy 3-5 word title for a slide presentation history list. Do not use quotes. Request: "

// SummarizeTitle asks the model for a short session title. Any failure
// yields store.DefaultSessionTitle.
func (p *Pipeline) SummarizeTitle(ctx context.Context, input string) string {
	text, err := p.gateway.Complete(context.WithoutCancel(ctx), gateway.Request{
		User:      titleInstruction + input,
		MaxTokens: p.cfg.TitleMaxTokens,
	})
	if err != nil {
		p.logger.Warn("title summarization failed, using default", zap.Error(err))
		return store.DefaultSessionTitle
	}
	if title := cleanTitle(text); title != "" {
		return title
	}
	return store.DefaultSessionTitle
}

// cleanTitle trims whitespace and any quotes the model wrapped around the
// title despite being told not to.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`“”‘’")
	return strings.TrimSpace(s)
}
