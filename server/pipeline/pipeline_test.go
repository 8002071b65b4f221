package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/prompts"
	"github.com/karimd18/project-C-case-study/server/gateway"
	"github.com/karimd18/project-C-case-study/server/metrics"
	"github.com/karimd18/project-C-case-study/server/mocks"
	"github.com/karimd18/project-C-case-study/store"
)

const fence = "```"

const (
	architectMarker = "ARCHITECT SYSTEM PROMPT"
	designerMarker  = "DESIGNER brief="
	correctorMarker = "CORRECTOR goal="
	titleMarker     = "Summarize this request"

	q3Request = "Show me Q3 revenue growth as a slide"
)

var testPrompts = prompts.Static{
	prompts.Architect: architectMarker,
	prompts.Designer:  designerMarker + "{{STRATEGIST_BRIEF}} request={{USER_REQUEST}}",
	prompts.Corrector: correctorMarker + "{{STRATEGIST_BRIEF}} code={{DESIGNER_CODE}} request={{USER_REQUEST}}",
}

var (
	architectGenerate = "Here is my plan:\n" + fence + "json\n" +
		`{"intent":"GENERATE","reply":"","slideStrategy":{"actionTitle":"Q3 Growth","slideArchetype":"chart","components":["bar chart"],"narrativeGoal":"Show growth","designBrief":"clean","loadingStrings":["Crunching"]}}` +
		"\n" + fence
	architectChat  = `{"intent":"CHAT","reply":"Hello! How can I help?"}`
	designerReply  = fence + "json\n" + `{"layout_strategy":"Draft layout","htmlCode":"<div id=\"draft\">Q3</div>"}` + "\n" + fence
	correctorReply = `Reviewed. {"layout_strategy":"Polished layout","htmlCode":"<div id=\"final\">Q3</div>"}`
	titleReply     = `"Q3 Revenue Growth"`
)

func q3Strategy() *Strategy {
	return &Strategy{
		ActionTitle:    "Q3 Growth",
		SlideArchetype: "chart",
		Components:     []string{"bar chart"},
		NarrativeGoal:  "Show growth",
		DesignBrief:    "clean",
		LoadingStrings: []string{"Crunching"},
	}
}

// happyGateway answers every stage successfully.
func happyGateway() *mocks.ScriptedGateway {
	return mocks.NewScriptedGateway().
		On(architectMarker, mocks.Reply{Text: architectGenerate}).
		On(designerMarker, mocks.Reply{Text: designerReply}).
		On(correctorMarker, mocks.Reply{Text: correctorReply}).
		On(titleMarker, mocks.Reply{Text: titleReply})
}

func newTestPipeline(t *testing.T, gw gateway.Gateway, repo store.Repository) (*Pipeline, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics()
	deps := Dependencies{
		Prompts: testPrompts,
		Gateway: gw,
		Metrics: m,
		Logger:  zaptest.NewLogger(t),
	}
	if repo != nil {
		deps.Sessions = repo
		deps.History = repo
	}
	p, err := New(Config{StageMaxTokens: 8192, TitleMaxTokens: 100}, deps)
	require.NoError(t, err)
	return p, m
}

func countCalls(gw *mocks.ScriptedGateway, marker string) int {
	n := 0
	for _, c := range gw.Calls() {
		if strings.Contains(c.System, marker) || strings.Contains(c.User, marker) {
			n++
		}
	}
	return n
}

func TestNewValidatesDependencies(t *testing.T) {
	gw := happyGateway()
	budgets := Config{StageMaxTokens: 8192, TitleMaxTokens: 100}

	_, err := New(budgets, Dependencies{Gateway: gw})
	assert.Error(t, err)
	_, err = New(budgets, Dependencies{Prompts: testPrompts})
	assert.Error(t, err)
	_, err = New(Config{StageMaxTokens: 8192}, Dependencies{Prompts: testPrompts, Gateway: gw})
	assert.Error(t, err)

	p, err := New(budgets, Dependencies{Prompts: testPrompts, Gateway: gw})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestGenerateConversational(t *testing.T) {
	for _, intent := range []string{"CHAT", "chat", "Chat"} {
		t.Run(intent, func(t *testing.T) {
			gw := mocks.NewScriptedGateway().
				On(architectMarker, mocks.Reply{Text: fmt.Sprintf(`{"intent":%q,"reply":"Hello! How can I help?"}`, intent)})
			p, m := newTestPipeline(t, gw, nil)

			resp, err := p.Generate(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, KindConversation, resp.Kind)
			assert.Equal(t, "Hello! How can I help?", resp.ExplanatoryText)
			assert.Nil(t, resp.MarkupCode)

			calls := gw.Calls()
			require.Len(t, calls, 1, "designer and corrector are never invoked")
			assert.Equal(t, architectMarker, calls[0].System)
			assert.Equal(t, "hi", calls[0].User)
			assert.Equal(t, 8192, calls[0].MaxTokens)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Responses.WithLabelValues("CONVERSATION")))

			raw, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.JSONEq(t, `{"layout":"CONVERSATION","conversationText":"Hello! How can I help?","htmlCode":null,"actionTitle":"","subtitle":null,"blocks":null}`, string(raw))
		})
	}
}

func TestRenderQ3Scenario(t *testing.T) {
	gw := happyGateway()
	repo := store.NewMemory()
	p, m := newTestPipeline(t, gw, repo)
	ctx := context.Background()

	analysis, err := p.Analyze(ctx, q3Request)
	require.NoError(t, err)
	assert.False(t, analysis.Conversational())
	require.NotNil(t, analysis.Strategy)
	assert.Equal(t, q3Strategy(), analysis.Strategy)

	resp := p.Render(ctx, "user-1", analysis.Strategy, q3Request)
	assert.Equal(t, KindHTML, resp.Kind)
	assert.Equal(t, "Q3 Growth", resp.ActionTitle)
	require.NotNil(t, resp.MarkupCode)
	assert.Equal(t, `<div id="final">Q3</div>`, *resp.MarkupCode)
	assert.Equal(t, "Polished layout", resp.ExplanatoryText)
	assert.Nil(t, resp.Subtitle)
	assert.Nil(t, resp.Blocks)

	calls := gw.Calls()
	require.Len(t, calls, 3)

	brief, err := json.Marshal(q3Strategy())
	require.NoError(t, err)
	designer := calls[1]
	assert.Equal(t, designerMarker+string(brief)+" request="+q3Request, designer.System)
	assert.Equal(t, q3Request, designer.User)
	assert.Equal(t, 8192, designer.MaxTokens)

	corrector := calls[2]
	assert.Equal(t, correctorMarker+"Show growth code=<div id=\"draft\">Q3</div> request="+q3Request, corrector.System,
		"designer markup is passed verbatim")
	assert.Equal(t, "QA Review Required.", corrector.User)
	assert.Equal(t, 8192, corrector.MaxTokens)

	records, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "user-1", records[0].OwnerUserID)
	assert.Equal(t, "Q3 Growth", records[0].ActionTitle)
	assert.Equal(t, q3Request, records[0].RawUserInput)

	var stored SlideResponse
	require.NoError(t, json.Unmarshal([]byte(records[0].SerializedResponse), &stored))
	assert.Equal(t, *resp, stored)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Responses.WithLabelValues("HTML_CODE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("append_record")))
}

func TestRenderWithoutUserSkipsHistory(t *testing.T) {
	repo := store.NewMemory()
	p, _ := newTestPipeline(t, happyGateway(), repo)

	resp := p.Render(context.Background(), "", q3Strategy(), q3Request)
	assert.Equal(t, KindHTML, resp.Kind)

	records, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGenerateRendersWithoutHistory(t *testing.T) {
	gw := happyGateway()
	repo := store.NewMemory()
	p, _ := newTestPipeline(t, gw, repo)

	resp, err := p.Generate(context.Background(), q3Request)
	require.NoError(t, err)
	assert.Equal(t, KindHTML, resp.Kind)
	assert.Equal(t, "Q3 Growth", resp.ActionTitle)
	assert.Equal(t, 3, len(gw.Calls()))

	records, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestArchitectSanitizesInput(t *testing.T) {
	gw := happyGateway()
	p, _ := newTestPipeline(t, gw, nil)

	raw := "  Show me\r\n Q3 revenue\r\n  "
	_, err := p.Generate(context.Background(), raw)
	require.NoError(t, err)

	calls := gw.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "Show me\n Q3 revenue", calls[0].User)
	assert.Equal(t, raw, calls[1].User, "designer gets the raw text")
}

func TestAnalyzePropagatesFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply mocks.Reply
		want  error
	}{
		{"transport", mocks.Reply{Err: fmt.Errorf("%w: status 529", errors.ErrTransport)}, errors.ErrTransport},
		{"not json", mocks.Reply{Text: "I cannot help with that."}, errors.ErrDecode},
		{"truncated json", mocks.Reply{Text: fence + "json\n{\"intent\":\"GENER"}, errors.ErrDecode},
		{"missing intent", mocks.Reply{Text: `{"reply":"hello"}`}, errors.ErrDecode},
		{"generative without strategy", mocks.Reply{Text: `{"intent":"GENERATE"}`}, errors.ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := mocks.NewScriptedGateway().On(architectMarker, tt.reply)
			p, _ := newTestPipeline(t, gw, nil)

			_, err := p.Analyze(context.Background(), q3Request)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			resp, err := p.Generate(context.Background(), q3Request)
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			assert.Zero(t, countCalls(gw, designerMarker))
		})
	}
}

func TestRenderFailuresBecomeErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		gw         *mocks.ScriptedGateway
		strategy   *Strategy
		wantPrefix string
	}{
		{
			name: "designer transport",
			gw: mocks.NewScriptedGateway().
				On(designerMarker, mocks.Reply{Err: fmt.Errorf("%w: status 500", errors.ErrTransport)}),
			strategy:   q3Strategy(),
			wantPrefix: "Designer Error: ",
		},
		{
			name: "designer decode",
			gw: mocks.NewScriptedGateway().
				On(designerMarker, mocks.Reply{Text: `{"layout_strategy":"no markup"}`}),
			strategy:   q3Strategy(),
			wantPrefix: "Designer Error: ",
		},
		{
			name: "corrector transport",
			gw: mocks.NewScriptedGateway().
				On(designerMarker, mocks.Reply{Text: designerReply}).
				On(correctorMarker, mocks.Reply{Err: fmt.Errorf("%w: connection reset", errors.ErrTransport)}),
			strategy:   q3Strategy(),
			wantPrefix: "Corrector Error: ",
		},
		{
			name: "corrector decode",
			gw: mocks.NewScriptedGateway().
				On(designerMarker, mocks.Reply{Text: designerReply}).
				On(correctorMarker, mocks.Reply{Text: "Looks fine to me."}),
			strategy:   q3Strategy(),
			wantPrefix: "Corrector Error: ",
		},
		{
			name:       "missing strategy",
			gw:         mocks.NewScriptedGateway(),
			strategy:   nil,
			wantPrefix: "Designer Error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := store.NewMemory()
			p, m := newTestPipeline(t, tt.gw, repo)

			resp := p.Render(context.Background(), "user-1", tt.strategy, q3Request)
			require.NotNil(t, resp)
			assert.Equal(t, KindError, resp.Kind)
			assert.True(t, strings.HasPrefix(resp.ExplanatoryText, tt.wantPrefix), resp.ExplanatoryText)
			assert.Equal(t, "System Error", resp.ActionTitle)
			assert.Nil(t, resp.MarkupCode)
			require.NotNil(t, resp.Subtitle)
			assert.Equal(t, "Analysis Failed", *resp.Subtitle)
			assert.NotNil(t, resp.Blocks)
			assert.Empty(t, resp.Blocks)

			raw, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.Contains(t, string(raw), `"htmlCode":null`)
			assert.Contains(t, string(raw), `"blocks":[]`)

			records, err := repo.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, records, "failed renders are not recorded by Render")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Responses.WithLabelValues("ERROR")))
		})
	}
}

func TestMissingTemplateStillCallsGateway(t *testing.T) {
	gw := mocks.NewScriptedGateway().
		On(prompts.NotFound(prompts.Architect), mocks.Reply{Text: architectChat})
	p, err := New(Config{StageMaxTokens: 8192, TitleMaxTokens: 100}, Dependencies{
		Prompts: prompts.Static{},
		Gateway: gw,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, KindConversation, resp.Kind)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		gw   *mocks.ScriptedGateway
		want []string
	}{
		{
			name: "slide",
			gw:   happyGateway(),
			want: []string{"ANALYZING", "DESIGNING", "CORRECTING", "MERGING", "DONE"},
		},
		{
			name: "conversation",
			gw:   mocks.NewScriptedGateway().On(architectMarker, mocks.Reply{Text: architectChat}),
			want: []string{"ANALYZING", "CONVERSATION_DONE"},
		},
		{
			name: "designer failure",
			gw: mocks.NewScriptedGateway().
				On(architectMarker, mocks.Reply{Text: architectGenerate}).
				On(designerMarker, mocks.Reply{Text: "nope"}),
			want: []string{"ANALYZING", "DESIGNING", "FAILED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			p, err := New(Config{StageMaxTokens: 8192, TitleMaxTokens: 100}, Dependencies{
				Prompts: testPrompts,
				Gateway: tt.gw,
				Logger:  zap.New(core),
			})
			require.NoError(t, err)

			_, err = p.Generate(context.Background(), q3Request)
			require.NoError(t, err)

			var got []string
			for _, entry := range logs.FilterMessage("pipeline transition").All() {
				got = append(got, entry.ContextMap()["to"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		reply mocks.Reply
		want  string
	}{
		{"quoted", mocks.Reply{Text: `"Q3 Revenue Growth"`}, "Q3 Revenue Growth"},
		{"whitespace", mocks.Reply{Text: "  Sales Pipeline Review \n"}, "Sales Pipeline Review"},
		{"single quotes", mocks.Reply{Text: "'Hiring Plan 2025'"}, "Hiring Plan 2025"},
		{"transport failure", mocks.Reply{Err: fmt.Errorf("%w: timeout", errors.ErrTransport)}, store.DefaultSessionTitle},
		{"empty", mocks.Reply{Text: "   "}, store.DefaultSessionTitle},
		{"only quotes", mocks.Reply{Text: `""`}, store.DefaultSessionTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := mocks.NewScriptedGateway().On(titleMarker, tt.reply)
			p, _ := newTestPipeline(t, gw, nil)

			assert.Equal(t, tt.want, p.SummarizeTitle(context.Background(), q3Request))

			calls := gw.Calls()
			require.Len(t, calls, 1)
			assert.Empty(t, calls[0].System)
			assert.Equal(t, 100, calls[0].MaxTokens)
			assert.Equal(t, titleInstruction+q3Request, calls[0].User)
		})
	}
}
