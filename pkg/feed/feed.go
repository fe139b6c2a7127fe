// Package feed defines the cancellable subscription contract shared by every
// price source.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

var ErrNoCodes = errors.New("feed: no instrument codes to watch")

// Source opens a streaming subscription for codes. Start only fails on bad
// input; connection problems after that are handled inside the source.
type Source interface {
	Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (Handle, error)
}

// Handle stops a running subscription. Close is idempotent and once it
// returns onMessage is never invoked again.
type Handle interface {
	Close() error
}

// Subscription is the Handle every source returns. Deliveries and Close are
// serialized on one mutex, so a frame racing with Close is either delivered
// before Close returns or dropped. onMessage must not call Close.
type Subscription struct {
	mu        sync.Mutex
	closed    bool
	started   bool
	onMessage func(models.PriceMessage)

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscription returns the subscription and the context its worker must watch.
func NewSubscription(parent context.Context, onMessage func(models.PriceMessage)) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		onMessage: onMessage,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, ctx
}

// Go runs the source's receive loop. Close waits for it to return.
func (s *Subscription) Go(ctx context.Context, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.started {
		return
	}
	s.started = true

	go func() {
		defer close(s.done)
		run(ctx)
	}()
}

// Deliver hands msg to onMessage unless the subscription is closed.
func (s *Subscription) Deliver(msg models.PriceMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.onMessage(msg)
	return true
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		s.mu.Unlock()

		s.cancel()
		if !started {
			close(s.done)
		}
	})
	<-s.done
	return nil
}

// Dedup drops empty and repeated codes, keeping first-seen order.
func Dedup(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
