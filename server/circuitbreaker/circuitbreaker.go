// Package circuitbreaker guards calls to the model provider. After a run of
// consecutive failures it rejects calls outright for a cool-down period,
// then lets a limited number of probe calls through to decide whether to
// close again.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds configuration for the circuit breaker
type Config struct {
	Name             string
	MaxRequests      uint32        // Probe calls allowed while half-open
	Interval         time.Duration // Closed-state period after which counts are cleared
	Timeout          time.Duration // Open-state period before going half-open
	FailureThreshold uint32        // Consecutive failures that trip the breaker
	TestMode         bool          // Skip metric registration
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker with logging and metrics.
type CircuitBreaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	// tripFailures is the failure run that tripped the breaker, captured
	// in ReadyToTrip. gobreaker holds its mutex while calling ReadyToTrip
	// and OnStateChange, so neither may call back into b.cb.
	tripFailures atomic.Uint32

	stateGauge    prometheus.Gauge
	failuresCount prometheus.Counter
	tripsTotal    prometheus.Counter
}

// NewCircuitBreaker creates a new circuit breaker. Metrics are registered
// with registry unless it is nil or the config is in test mode.
func NewCircuitBreaker(config Config, logger *zap.Logger, registry *prometheus.Registry) (*CircuitBreaker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("circuit breaker name is required")
	}
	if config.FailureThreshold == 0 {
		return nil, fmt.Errorf("circuit breaker %s: failure threshold must be positive", config.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &CircuitBreaker{
		name:   config.Name,
		logger: logger,
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "projectc_circuit_breaker_state",
			Help:        "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			ConstLabels: prometheus.Labels{"name": config.Name},
		}),
		failuresCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "projectc_circuit_breaker_failures_total",
			Help:        "Total number of failures recorded by the circuit breaker",
			ConstLabels: prometheus.Labels{"name": config.Name},
		}),
		tripsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "projectc_circuit_breaker_trips_total",
			Help:        "Total number of times the circuit breaker has tripped",
			ConstLabels: prometheus.Labels{"name": config.Name},
		}),
	}

	if !config.TestMode && registry != nil {
		for _, c := range []prometheus.Collector{b.stateGauge, b.failuresCount, b.tripsTotal} {
			if err := registry.Register(c); err != nil {
				return nil, fmt.Errorf("register circuit breaker metrics: %w", err)
			}
		}
	}

	threshold := config.FailureThreshold
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures < threshold {
				return false
			}
			b.tripFailures.Store(counts.ConsecutiveFailures)
			return true
		},
		OnStateChange: b.onStateChange,
	})

	return b, nil
}

func (b *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	b.stateGauge.Set(float64(to))
	if to == gobreaker.StateOpen {
		b.tripsTotal.Inc()
		failures := b.tripFailures.Load()
		if from == gobreaker.StateHalfOpen {
			// a single failed probe reopens the breaker
			failures = 1
		}
		b.logger.Warn("Circuit breaker tripped",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.Uint32("consecutive_failures", failures),
		)
		return
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Execute runs f if the breaker allows it. While the breaker is open, or
// half-open with all probes in flight, f is not called and ErrCircuitOpen
// is returned. Otherwise the error from f is returned unchanged.
func (b *CircuitBreaker) Execute(f func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrCircuitOpen
	case err != nil:
		b.failuresCount.Inc()
	}
	return err
}

// State returns the current state of the circuit breaker
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the request counts for the current generation.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}
