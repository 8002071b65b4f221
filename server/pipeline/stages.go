package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/prompts"
	"github.com/karimd18/project-C-case-study/server/gateway"
	"github.com/karimd18/project-C-case-study/server/processing"
)

// Template placeholders.
const (
	placeholderBrief    = "STRATEGIST_BRIEF"
	placeholderRequest  = "USER_REQUEST"
	placeholderDesigner = "DESIGNER_CODE"
)

const correctorInstruction = "QA Review Required."

func (p *Pipeline) architect(ctx context.Context, input string) (*Analysis, error) {
	system := p.prompts.Load(prompts.Architect)
	user := strings.TrimSpace(strings.ReplaceAll(input, "\r", ""))

	var analysis Analysis
	if err := p.callStage(ctx, "architect", system, user, &analysis); err != nil {
		return nil, err
	}
	if !analysis.Conversational() && analysis.Strategy == nil {
		return nil, fmt.Errorf("%w: intent %q has no slideStrategy", errors.ErrDecode, analysis.Intent)
	}
	return &analysis, nil
}

func (p *Pipeline) designer(ctx context.Context, strategy *Strategy, input string) (*StageOutput, error) {
	brief, err := json.Marshal(strategy)
	if err != nil {
		return nil, fmt.Errorf("serialize strategy: %w", err)
	}
	system := prompts.Render(p.prompts.Load(prompts.Designer), map[string]string{
		placeholderBrief:   string(brief),
		placeholderRequest: input,
	})

	var out StageOutput
	if err := p.callStage(ctx, "designer", system, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Pipeline) corrector(ctx context.Context, strategy *Strategy, markup, input string) (*StageOutput, error) {
	system := prompts.Render(p.prompts.Load(prompts.Corrector), map[string]string{
		placeholderBrief:    strategy.NarrativeGoal,
		placeholderDesigner: markup,
		placeholderRequest:  input,
	})

	var out StageOutput
	if err := p.callStage(ctx, "corrector", system, correctorInstruction, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// callStage makes one model call and decodes the reply into out.
func (p *Pipeline) callStage(ctx context.Context, stage, system, user string, out interface{}) error {
	start := time.Now()
	text, err := p.gateway.Complete(ctx, gateway.Request{
		System:    system,
		User:      user,
		MaxTokens: p.cfg.StageMaxTokens,
	})
	outcome := "ok"
	if err != nil {
		outcome = "transport"
	} else if err = processing.Decode(text, out); err != nil {
		outcome = "decode"
	}
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
	}
	return err
}
