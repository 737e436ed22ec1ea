package notify

import (
	"context"
	"log/slog"
	"sync"

	"corebridge/process-service/internal/process"
)

// Async hands notifications to a background worker so a slow downstream
// never delays a transition. When the queue is full the notification is
// dropped and logged.
type Async struct {
	next  process.Notifier
	queue chan item

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type item struct {
	ctx context.Context
	n   process.Notification
}

// NewAsync starts a worker delivering to next through a queue of size slots.
func NewAsync(next process.Notifier, size int) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:  next,
		queue: make(chan item, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues n without blocking.
func (a *Async) Notify(ctx context.Context, n process.Notification) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		slog.Warn("notification dropped: notifier closed", "userId", n.UserID, "relatedId", n.RelatedID)
		return
	}
	select {
	case a.queue <- item{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		slog.Warn("notification dropped: queue full", "userId", n.UserID, "relatedId", n.RelatedID)
	}
}

// Close stops accepting notifications and waits until the queued ones are
// delivered or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for it := range a.queue {
		a.deliver(it)
	}
}

func (a *Async) deliver(it item) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("notifier panicked", "userId", it.n.UserID, "panic", r)
		}
	}()
	a.next.Notify(it.ctx, it.n)
}

var _ process.Notifier = (*Async)(nil)
