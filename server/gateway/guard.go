package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/circuitbreaker"
	"github.com/karimd18/project-C-case-study/server/metrics"
)

// Guarded wraps a Gateway with a process-wide outbound rate limiter and a
// circuit breaker. Calls are never retried. A rejected call wraps both
// errors.ErrTransport and circuitbreaker.ErrCircuitOpen.
type Guarded struct {
	next    Gateway
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ Gateway = (*Guarded)(nil)

// NewGuarded wraps next. limiter, breaker and m may each be nil.
func NewGuarded(next Gateway, limiter *rate.Limiter, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{
		next:    next,
		limiter: limiter,
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// NewLimiter returns a limiter for the given rate, or nil when rps is not
// positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Complete implements Gateway.
func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.observe("throttled", start)
			return "", transportError("rate limiter: %v", err)
		}
	}

	var text string
	call := func() error {
		var err error
		text, err = g.next.Complete(ctx, req)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
	} else {
		err = call()
	}

	switch {
	case err == nil:
		g.observe("ok", start)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		g.observe("rejected", start)
		g.logger.Warn("llm call rejected by circuit breaker", zap.String("breaker", g.breaker.Name()))
		err = fmt.Errorf("%w: %w", errors.ErrTransport, err)
	default:
		g.observe("error", start)
		g.logger.Warn("llm call failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	}
	return text, err
}

func (g *Guarded) observe(outcome string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.GatewayCalls.WithLabelValues(outcome).Inc()
	g.metrics.GatewayDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
