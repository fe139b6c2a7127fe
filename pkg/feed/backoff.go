package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/SunYerim/StockOfGalaxy/pkg/config"
)

// Backoff is the reconnect policy shared by sources.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int // 0 = unlimited
}

func BackoffFromConfig(cfg config.FeedConfig) Backoff {
	return Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax, MaxRetries: cfg.MaxRetries}
}

// Delay is base * 2^attempt capped at Max, with up to 20% jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if d <= 0 {
		return 0
	}
	return d - time.Duration(rand.Int63n(int64(d)/5+1))
}

// Exhausted reports whether attempt is past the retry budget.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxRetries > 0 && attempt > b.MaxRetries
}

// Wait sleeps for Delay(attempt) and returns false if ctx ends first.
func (b Backoff) Wait(ctx context.Context, attempt int) bool {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
