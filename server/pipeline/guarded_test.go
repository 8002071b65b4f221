package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/circuitbreaker"
	"github.com/karimd18/project-C-case-study/server/gateway"
)

func renderWithin(t *testing.T, p *Pipeline, strategy *Strategy, input string) *SlideResponse {
	t.Helper()
	done := make(chan *SlideResponse, 1)
	go func() { done <- p.Render(context.Background(), "", strategy, input) }()
	select {
	case resp := <-done:
		return resp
	case <-time.After(3 * time.Second):
		t.Fatal("Render did not return")
		return nil
	}
}

func TestRenderThroughTrippedBreaker(t *testing.T) {
	var calls int32
	failing := gateway.Func(func(ctx context.Context, req gateway.Request) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", fmt.Errorf("%w: status 529", errors.ErrTransport)
	})

	breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "llm_gateway",
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		TestMode:         true,
	}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	guarded := gateway.NewGuarded(failing, nil, breaker, nil, zaptest.NewLogger(t))
	p, _ := newTestPipeline(t, guarded, nil)

	tests := []struct {
		name      string
		wantCalls int32
	}{
		{name: "failure that trips the breaker", wantCalls: 1},
		{name: "rejected by the open breaker", wantCalls: 1},
		{name: "still rejected", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := renderWithin(t, p, q3Strategy(), q3Request)
			require.NotNil(t, resp)
			assert.Equal(t, KindError, resp.Kind)
			assert.Equal(t, "System Error", resp.ActionTitle)
			assert.Nil(t, resp.MarkupCode)
			assert.True(t, strings.HasPrefix(resp.ExplanatoryText, "Designer Error: "), resp.ExplanatoryText)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}

	_, err = p.Analyze(context.Background(), q3Request)
	assert.True(t, errors.Is(err, errors.ErrOverloaded), "got %v", err)
}
