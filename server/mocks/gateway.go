package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/gateway"
)

// Reply is one scripted gateway outcome.
type Reply struct {
	Text string
	Err  error
}

// ScriptedGateway answers each call from the first rule whose marker is a
// substring of the request's system prompt, or of the user message when
// the system prompt does not match. Calls are recorded in order.
type ScriptedGateway struct {
	mu       sync.Mutex
	rules    []rule
	fallback *Reply
	calls    []gateway.Request
}

type rule struct {
	marker  string
	replies []Reply
}

var _ gateway.Gateway = (*ScriptedGateway)(nil)

// NewScriptedGateway returns a gateway with no rules. Unmatched calls fail
// with a transport error.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{}
}

// On registers replies for requests containing marker. With several
// replies they are used in order and the last one repeats.
func (g *ScriptedGateway) On(marker string, replies ...Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{marker: marker, replies: replies})
	return g
}

// Otherwise sets the reply for unmatched calls.
func (g *ScriptedGateway) Otherwise(reply Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = &reply
	return g
}

// Complete implements gateway.Gateway.
func (g *ScriptedGateway) Complete(ctx context.Context, req gateway.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)

	for _, haystack := range []string{req.System, req.User} {
		for i := range g.rules {
			r := &g.rules[i]
			if r.marker == "" || !strings.Contains(haystack, r.marker) || len(r.replies) == 0 {
				continue
			}
			reply := r.replies[0]
			if len(r.replies) > 1 {
				r.replies = r.replies[1:]
			}
			return reply.Text, reply.Err
		}
	}
	if g.fallback != nil {
		return g.fallback.Text, g.fallback.Err
	}
	return "", fmt.Errorf("%w: no scripted reply", errors.ErrTransport)
}

// Calls returns the recorded requests.
func (g *ScriptedGateway) Calls() []gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Request(nil), g.calls...)
}
