package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/eapache/queue/v2"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/metrics"
)

// QueueMiddleware bounds the number of pipeline runs in flight.
//
// Up to maxConcurrent requests run at once. Further requests wait in a
// FIFO queue of at most maxQueued entries and are admitted in arrival
// order as running requests finish. A request arriving at a full queue is
// rejected with 503. A waiting request whose context ends leaves the
// queue without being admitted.
type QueueMiddleware struct {
	mu            sync.Mutex
	waiting       *queue.Queue[*waiter] // FIFO of requests waiting for a slot
	pending       int                   // waiters in the queue that have not given up
	active        int                   // requests currently admitted
	maxConcurrent int
	maxQueued     int
	metrics       *metrics.Metrics
}

// waiter is one queued request. ready is closed when the request is
// granted a slot; abandoned is set under mu when it gives up first.
type waiter struct {
	ready     chan struct{}
	abandoned bool
}

// QueueConfig defines the operational parameters for the queue middleware.
type QueueConfig struct {
	MaxConcurrent int              // requests processed at once
	MaxQueued     int              // requests allowed to wait
	Metrics       *metrics.Metrics // optional
}

// NewQueueMiddleware creates a QueueMiddleware. MaxConcurrent must be
// positive; MaxQueued may be zero to reject whenever all slots are busy.
func NewQueueMiddleware(cfg QueueConfig) (*QueueMiddleware, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("queue max_concurrent must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxQueued < 0 {
		return nil, fmt.Errorf("queue max_queued must not be negative, got %d", cfg.MaxQueued)
	}
	return &QueueMiddleware{
		waiting:       queue.New[*waiter](),
		maxConcurrent: cfg.MaxConcurrent,
		maxQueued:     cfg.MaxQueued,
		metrics:       cfg.Metrics,
	}, nil
}

// errQueueFull is returned by acquire when the request must be rejected.
var errQueueFull = fmt.Errorf("%w: request queue is full", errors.ErrOverloaded)

// acquire blocks until the caller may run, the queue is full, or ctx ends.
func (qm *QueueMiddleware) acquire(ctx context.Context) error {
	qm.mu.Lock()
	if qm.active < qm.maxConcurrent && qm.pending == 0 {
		qm.active++
		qm.mu.Unlock()
		return nil
	}
	if qm.pending >= qm.maxQueued {
		qm.mu.Unlock()
		if qm.metrics != nil {
			qm.metrics.QueueRejections.Inc()
		}
		return errQueueFull
	}
	w := &waiter{ready: make(chan struct{})}
	qm.waiting.Add(w)
	qm.pending++
	qm.setDepth()
	qm.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	qm.mu.Lock()
	select {
	case <-w.ready:
		// Granted while giving up; pass the slot on.
		qm.mu.Unlock()
		qm.release()
		return ctx.Err()
	default:
	}
	w.abandoned = true
	qm.pending--
	qm.setDepth()
	qm.mu.Unlock()
	return ctx.Err()
}

// release frees the caller's slot, handing it to the oldest live waiter.
func (qm *QueueMiddleware) release() {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	for qm.waiting.Length() > 0 {
		w := qm.waiting.Remove()
		if w.abandoned {
			continue
		}
		qm.pending--
		qm.setDepth()
		close(w.ready)
		return
	}
	qm.active--
}

// setDepth must be called with mu held.
func (qm *QueueMiddleware) setDepth() {
	if qm.metrics != nil {
		qm.metrics.QueueDepth.Set(float64(qm.pending))
	}
}

// GetQueueSize returns the number of requests waiting for a slot.
func (qm *QueueMiddleware) GetQueueSize() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.pending
}

// GetProcessing returns the number of admitted requests.
func (qm *QueueMiddleware) GetProcessing() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.active
}

// Handler admits requests through the queue before calling next.
func (qm *QueueMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := qm.acquire(r.Context()); err != nil {
			if errors.Is(err, errors.ErrOverloaded) {
				errors.WriteError(w, errors.NewOverloadedError(GetRequestID(r.Context()), err))
			}
			// Otherwise the client went away while waiting.
			return
		}
		defer qm.release()

		next.ServeHTTP(w, r)
	})
}
