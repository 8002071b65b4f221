// Package pipeline runs the three-stage slide generation flow.
//
// The architect classifies a request and plans the slide, the designer
// turns the plan into markup and the corrector reviews that markup. A run
// moves through ANALYZING, then either CONVERSATION_DONE or DESIGNING,
// CORRECTING, MERGING and DONE. FAILED is reachable from every stage and
// absorbing.
//
// Analyze returns its failures. Render never does: a failed designer or
// corrector call becomes an ERROR response. Persistence side effects are
// best effort and never change what a caller receives.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/karimd18/project-C-case-study/prompts"
	"github.com/karimd18/project-C-case-study/server/gateway"
	"github.com/karimd18/project-C-case-study/server/metrics"
	"github.com/karimd18/project-C-case-study/store"
)

// Config holds the token budgets for model calls.
type Config struct {
	StageMaxTokens int
	TitleMaxTokens int
}

// Dependencies are the collaborators of a Pipeline. Sessions, History and
// Metrics may be nil.
type Dependencies struct {
	Prompts  prompts.Loader
	Gateway  gateway.Gateway
	Sessions store.SessionStore
	History  store.HistoryStore
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Pipeline is safe for concurrent use. It keeps no state between runs
// other than what it reads from the stores.
type Pipeline struct {
	cfg      Config
	prompts  prompts.Loader
	gateway  gateway.Gateway
	sessions store.SessionStore
	history  store.HistoryStore
	metrics  *metrics.Metrics
	logger   *zap.Logger

	renames singleflight.Group
}

// New creates a Pipeline.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if deps.Prompts == nil {
		return nil, fmt.Errorf("pipeline: prompt loader is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("pipeline: gateway is required")
	}
	if cfg.StageMaxTokens <= 0 || cfg.TitleMaxTokens <= 0 {
		return nil, fmt.Errorf("pipeline: token budgets must be positive (stage=%d, title=%d)", cfg.StageMaxTokens, cfg.TitleMaxTokens)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		prompts:  deps.Prompts,
		gateway:  deps.Gateway,
		sessions: deps.Sessions,
		history:  deps.History,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}, nil
}

// run tracks the state of one invocation.
type run struct {
	state  State
	start  time.Time
	logger *zap.Logger
}

func (p *Pipeline) newRun(op string) *run {
	return &run{
		start:  time.Now(),
		logger: p.logger.With(zap.String("op", op), zap.String("run_id", uuid.NewString())),
	}
}

func (r *run) to(next State) {
	if r.state == StateFailed {
		return
	}
	r.logger.Debug("pipeline transition",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)),
		zap.Duration("elapsed", time.Since(r.start)),
	)
	r.state = next
}

// fail moves the run to FAILED and builds the ERROR response for stage.
func (r *run) fail(stage string, err error) *SlideResponse {
	r.to(StateFailed)
	r.logger.Warn("pipeline stage failed", zap.String("stage", stage), zap.Error(err))
	return failure(fmt.Sprintf("%s Error: %v", stage, err))
}

// Analyze runs the architect stage. Transport and decode failures are
// returned.
func (p *Pipeline) Analyze(ctx context.Context, input string) (*Analysis, error) {
	return p.analyze(context.WithoutCancel(ctx), p.newRun("analyze"), input)
}

func (p *Pipeline) analyze(ctx context.Context, r *run, input string) (*Analysis, error) {
	r.to(StateAnalyzing)
	analysis, err := p.architect(ctx, input)
	if err != nil {
		r.to(StateFailed)
		return nil, fmt.Errorf("architect analysis failed: %w", err)
	}
	if analysis.Conversational() {
		r.to(StateConversationDone)
	}
	return analysis, nil
}

// Render runs the designer and corrector for strategy. It always returns
// a response. When userID is set, a successful render is recorded in
// history.
//
// A failed stage yields an ERROR response whose explanatory text names the
// stage that failed: "Designer Error: <reason>" or "Corrector Error: <reason>".
func (p *Pipeline) Render(ctx context.Context, userID string, strategy *Strategy, input string) *SlideResponse {
	ctx = context.WithoutCancel(ctx)
	resp := p.render(ctx, p.newRun("render"), strategy, input)
	if userID != "" && resp.Kind == KindHTML {
		p.recordHistory(ctx, userID, input, resp)
	}
	return resp
}

func (p *Pipeline) render(ctx context.Context, r *run, strategy *Strategy, input string) *SlideResponse {
	resp := p.renderStages(ctx, r, strategy, input)
	p.countResponse(resp)
	return resp
}

func (p *Pipeline) renderStages(ctx context.Context, r *run, strategy *Strategy, input string) *SlideResponse {
	if strategy == nil {
		return r.fail("Designer", fmt.Errorf("missing slide strategy"))
	}

	r.to(StateDesigning)
	designed, err := p.designer(ctx, strategy, input)
	if err != nil {
		return r.fail("Designer", err)
	}

	r.to(StateCorrecting)
	corrected, err := p.corrector(ctx, strategy, designed.Markup, input)
	if err != nil {
		return r.fail("Corrector", err)
	}

	r.to(StateMerging)
	markup := corrected.Markup
	resp := &SlideResponse{
		Kind:            KindHTML,
		ExplanatoryText: corrected.Explanation,
		MarkupCode:      &markup,
		ActionTitle:     strategy.ActionTitle,
	}
	r.to(StateDone)
	return resp
}

// Generate runs Analyze and, for a generative intent, Render without a
// user. An Analyze failure is returned.
func (p *Pipeline) Generate(ctx context.Context, input string) (*SlideResponse, error) {
	ctx = context.WithoutCancel(ctx)
	r := p.newRun("generate")

	analysis, err := p.analyze(ctx, r, input)
	if err != nil {
		return nil, err
	}
	if analysis.Conversational() {
		resp := conversation(analysis.Reply)
		p.countResponse(resp)
		return resp, nil
	}
	return p.render(ctx, r, analysis.Strategy, input), nil
}

func (p *Pipeline) countResponse(resp *SlideResponse) {
	if p.metrics != nil {
		p.metrics.Responses.WithLabelValues(string(resp.Kind)).Inc()
	}
}
