package reachability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler receives the new status after every change.
type Handler func(status Status)

// Source reports the reachability of the system.
type Source interface {
	// Current returns the status right now.
	Current(ctx context.Context) (Status, error)
	// Watch blocks until ctx ends, calling onChange whenever the status may
	// have changed.
	Watch(ctx context.Context, onChange func()) error
}

// ErrNoSource is returned by Run when the publisher has no source.
var ErrNoSource = errors.New("no reachability source configured")

type subscription struct {
	id      uuid.UUID
	handler Handler
}

// Publisher holds the current reachability status and notifies subscribers
// when it changes. It is safe for concurrent use.
type Publisher struct {
	source Source

	// notifyMu serializes status updates with their notifications so
	// subscribers observe changes in order.
	notifyMu sync.Mutex

	mu     sync.RWMutex
	status Status
	subs   []subscription
}

// NewPublisher creates a publisher with an Unknown status. source may be nil
// when statuses are pushed with Set.
func NewPublisher(source Source) *Publisher {
	return &Publisher{
		source: source,
		status: StatusUnknown,
	}
}

// Status returns the current status.
func (p *Publisher) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Subscribe registers h and returns an id for Unsubscribe. Handlers run on
// the goroutine that applied the change and must not call Set.
func (p *Publisher) Subscribe(h Handler) uuid.UUID {
	id := uuid.New()

	p.mu.Lock()
	p.subs = append(p.subs, subscription{id: id, handler: h})
	p.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription. It returns false if id is unknown.
func (p *Publisher) Unsubscribe(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subs {
		if sub.id == id {
			p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
			return true
		}
	}
	return false
}

// SubscribeCurrent registers h like Subscribe and also returns the status at
// the moment of registration. h is called for every change after that status
// and for none before it.
func (p *Publisher) SubscribeCurrent(h Handler) (uuid.UUID, Status) {
	id := uuid.New()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, subscription{id: id, handler: h})
	return id, p.status
}

// Changes returns a channel that receives each new status until ctx ends,
// after which it is closed. A slow reader only sees the latest status.
func (p *Publisher) Changes(ctx context.Context) <-chan Status {
	ch := make(chan Status, 1)

	var mu sync.Mutex
	closed := false

	id := p.Subscribe(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- s
	})

	go func() {
		<-ctx.Done()
		p.Unsubscribe(id)
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// Set records status and notifies subscribers if it differs from the
// current one. It returns true if the status changed.
func (p *Publisher) Set(status Status) bool {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	old := p.status
	if old == status {
		p.mu.Unlock()
		return false
	}
	p.status = status
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	slog.Info("Reachability changed", "from", old, "to", status)

	// Handlers run outside the state lock.
	for _, sub := range subs {
		sub.handler(status)
	}
	return true
}

// Refresh reads the source and publishes its status. On error the status
// becomes Unknown.
func (p *Publisher) Refresh(ctx context.Context) error {
	if p.source == nil {
		return ErrNoSource
	}
	status, err := p.source.Current(ctx)
	if err != nil {
		p.Set(StatusUnknown)
		return fmt.Errorf("failed to read reachability: %w", err)
	}
	p.Set(status)
	return nil
}

// Run publishes the current status and then follows the source until ctx
// ends. It returns nil when ctx ends and an error if the source fails.
func (p *Publisher) Run(ctx context.Context) error {
	if p.source == nil {
		return ErrNoSource
	}

	if err := p.Refresh(ctx); err != nil {
		slog.Warn("Initial reachability read failed", "error", err)
	}

	err := p.source.Watch(ctx, func() {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Reachability refresh failed", "error", err)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reachability watch stopped: %w", err)
	}
	return nil
}
