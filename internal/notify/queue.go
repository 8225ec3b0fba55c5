// Package notify delivers operator messages off the trading path. The engine
// enqueues and returns; sinks run on a single background worker.
package notify

import (
	"context"
	"sync"
	"time"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/types"

	"github.com/google/uuid"
)

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, n types.Notification) error
}

// Queue is a bounded outbound buffer. When full, new notifications are
// dropped and counted rather than blocking the caller.
type Queue struct {
	ch      chan types.Notification
	sinks   []Sink
	metrics *metrics.Metrics

	// mu orders sends against close of ch
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ interfaces.Notifier = (*Queue)(nil)

func NewQueue(size int, m *metrics.Metrics, sinks ...Sink) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:      make(chan types.Notification, size),
		sinks:   sinks,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start runs the delivery worker until Close.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for n := range q.ch {
			q.deliver(ctx, n)
		}
	}()
}

func (q *Queue) Notify(ctx context.Context, n types.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.NotificationDropped()
		logger.Warn(ctx, "Notification queue closed, dropping message",
			"kind", n.Kind,
			"order_id", n.OrderID,
		)
		return
	}

	select {
	case q.ch <- n:
	default:
		q.metrics.NotificationDropped()
		logger.Warn(ctx, "Notification queue full, dropping message",
			"kind", n.Kind,
			"order_id", n.OrderID,
		)
	}
}

// Close stops accepting work and waits for queued messages to drain, up to
// ctx's deadline. Later calls to Notify drop their message.
func (q *Queue) Close(ctx context.Context) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
		logger.Warn(ctx, "Notification queue did not drain before shutdown", "pending", len(q.ch))
	}
}

func (q *Queue) deliver(ctx context.Context, n types.Notification) {
	for _, s := range q.sinks {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		err := s.Send(sendCtx, n)
		cancel()

		q.metrics.NotificationSent(s.Name(), err == nil)
		if err != nil {
			logger.Warn(ctx, "Notification delivery failed",
				"sink", s.Name(),
				"kind", n.Kind,
				"order_id", n.OrderID,
				"error", err,
			)
		}
	}
}
