package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single background delivery.
const DefaultSendTimeout = 30 * time.Second

// Async makes dispatch fire-and-forget. Each message is delivered on its own
// goroutine with a context detached from the caller's cancellation and bounded
// by the send timeout. Failures are logged and counted, never returned.
type Async struct {
	next      Dispatcher
	transport string
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync wraps next. A non-positive timeout selects DefaultSendTimeout.
func NewAsync(next Dispatcher, transport string, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Async{
		next:      next,
		transport: transport,
		timeout:   timeout,
		logger:    logger,
	}
}

// Dispatch schedules msg for background delivery and returns immediately.
// After Close it drops the message and returns ErrDispatcherClosed.
func (a *Async) Dispatch(ctx context.Context, msg Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		notificationsTotal.WithLabelValues(a.transport, outcomeDropped).Inc()
		a.logger.WarnContext(ctx, "notification dropped, dispatcher closed",
			slog.String("transport", a.transport),
			slog.String("to", msg.To),
		)
		return ErrDispatcherClosed
	}

	a.wg.Add(1)
	go a.deliver(context.WithoutCancel(ctx), msg)

	return nil
}

func (a *Async) deliver(ctx context.Context, msg Message) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.next.Dispatch(ctx, msg); err != nil {
		notificationsTotal.WithLabelValues(a.transport, outcomeFailed).Inc()
		a.logger.ErrorContext(ctx, "failed to deliver notification",
			slog.String("transport", a.transport),
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}

	notificationsTotal.WithLabelValues(a.transport, outcomeSent).Inc()
	a.logger.InfoContext(ctx, "notification delivered",
		slog.String("transport", a.transport),
		slog.String("to", msg.To),
	)
}

// Close stops accepting messages and waits for in-flight deliveries until ctx
// is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
