package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/store"
)

// AnalyzeInSession runs Analyze. A conversational result is appended to
// the session as a user turn and an assistant turn.
func (p *Pipeline) AnalyzeInSession(ctx context.Context, sessionID, input string) (*Analysis, error) {
	ctx = context.WithoutCancel(ctx)
	analysis, err := p.analyze(ctx, p.newRun("analyze"), input)
	if err != nil {
		return nil, err
	}
	if analysis.Conversational() && sessionID != "" {
		p.appendExchange(ctx, sessionID, input, analysis.Reply)
	}
	return analysis, nil
}

// RenderInSession runs Render and then records the result. The record is
// written to history whatever the outcome. With a session, the exchange is
// appended and a session still carrying the default title is renamed after
// a successful render. None of this changes the returned response.
func (p *Pipeline) RenderInSession(ctx context.Context, sessionID, ownerID string, strategy *Strategy, input string) *SlideResponse {
	ctx = context.WithoutCancel(ctx)
	resp := p.render(ctx, p.newRun("render"), strategy, input)
	p.afterRender(ctx, sessionID, ownerID, input, resp)
	return resp
}

// GenerateInSession runs Analyze and continues like AnalyzeInSession for a
// conversational result or like RenderInSession otherwise.
func (p *Pipeline) GenerateInSession(ctx context.Context, sessionID, ownerID, input string) (*SlideResponse, error) {
	ctx = context.WithoutCancel(ctx)
	r := p.newRun("generate")

	analysis, err := p.analyze(ctx, r, input)
	if err != nil {
		return nil, err
	}
	if analysis.Conversational() {
		resp := conversation(analysis.Reply)
		p.countResponse(resp)
		if sessionID != "" {
			p.appendExchange(ctx, sessionID, input, analysis.Reply)
		}
		return resp, nil
	}

	resp := p.render(ctx, r, analysis.Strategy, input)
	p.afterRender(ctx, sessionID, ownerID, input, resp)
	return resp, nil
}

func (p *Pipeline) afterRender(ctx context.Context, sessionID, ownerID, input string, resp *SlideResponse) {
	record := p.recordHistory(ctx, ownerID, input, resp)
	if sessionID == "" {
		return
	}

	reply := "Generated slide: " + resp.ActionTitle
	if record != nil {
		reply += " #SLIDE_ID:" + record.ID
	}
	p.appendExchange(ctx, sessionID, input, reply)

	if resp.Kind == KindHTML {
		p.renameIfDefault(ctx, sessionID, input)
	}
}

// recordHistory appends resp to history. It returns nil when nothing was
// written.
func (p *Pipeline) recordHistory(ctx context.Context, ownerID, input string, resp *SlideResponse) *store.HistoryRecord {
	if p.history == nil {
		return nil
	}
	serialized, err := json.Marshal(resp)
	if err != nil {
		p.persistenceFailed("append_record", err)
		return nil
	}
	record := &store.HistoryRecord{
		OwnerUserID:        ownerID,
		RawUserInput:       input,
		SerializedResponse: string(serialized),
		ActionTitle:        resp.ActionTitle,
	}
	if err := p.history.AppendRecord(ctx, record); err != nil {
		p.persistenceFailed("append_record", err)
		return nil
	}
	return record
}

func (p *Pipeline) appendExchange(ctx context.Context, sessionID, userText, assistantText string) {
	if p.sessions == nil {
		return
	}
	if err := p.sessions.AppendTurn(ctx, sessionID, store.RoleUser, userText); err != nil {
		p.persistenceFailed("append_turn", err, zap.String("session_id", sessionID))
		return
	}
	if err := p.sessions.AppendTurn(ctx, sessionID, store.RoleAssistant, assistantText); err != nil {
		p.persistenceFailed("append_turn", err, zap.String("session_id", sessionID))
	}
}

// renameIfDefault gives a default-titled session a summarized title.
// Concurrent calls for one session share a single attempt, and the title
// is re-read inside it, so a session is renamed at most once.
func (p *Pipeline) renameIfDefault(ctx context.Context, sessionID, input string) {
	if p.sessions == nil {
		return
	}
	p.renames.Do(sessionID, func() (interface{}, error) {
		session, err := p.sessions.GetSession(ctx, sessionID)
		if err != nil {
			p.persistenceFailed("get_session", err, zap.String("session_id", sessionID))
			return nil, nil
		}
		if session == nil || session.Title != store.DefaultSessionTitle {
			return nil, nil
		}

		title := p.SummarizeTitle(ctx, input)
		if title == store.DefaultSessionTitle {
			return nil, nil
		}
		if err := p.sessions.RenameSession(ctx, sessionID, title); err != nil {
			p.persistenceFailed("rename_session", err, zap.String("session_id", sessionID))
			return nil, nil
		}
		p.logger.Info("session renamed", zap.String("session_id", sessionID), zap.String("title", title))
		return nil, nil
	})
}

func (p *Pipeline) persistenceFailed(op string, err error, fields ...zap.Field) {
	if p.metrics != nil {
		p.metrics.PersistenceFailures.WithLabelValues(op).Inc()
	}
	p.logger.Warn(fmt.Sprintf("%s failed, response unaffected", op), append(fields, zap.Error(err))...)
}
