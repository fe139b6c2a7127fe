package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// upstream records every Start and lets the test push quotes into the live
// subscriptions.
type upstream struct {
	mu     sync.Mutex
	starts [][]string
	subs   []*feed.Subscription
	reject string
}

func (u *upstream) Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (feed.Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range codes {
		if c == u.reject {
			return nil, errors.New("rejected " + c)
		}
	}
	sub, subCtx := feed.NewSubscription(ctx, onMessage)
	sub.Go(subCtx, func(ctx context.Context) { <-ctx.Done() })
	u.starts = append(u.starts, append([]string(nil), codes...))
	u.subs = append(u.subs, sub)
	return sub, nil
}

func (u *upstream) live() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, s := range u.subs {
		if !s.Closed() {
			n++
		}
	}
	return n
}

func (u *upstream) push(msg models.PriceMessage) {
	u.mu.Lock()
	subs := append([]*feed.Subscription(nil), u.subs...)
	u.mu.Unlock()
	for _, s := range subs {
		s.Deliver(msg)
	}
}

// collector gathers quotes by code.
type collector struct {
	mu  sync.Mutex
	got map[string][]int64
}

func newCollector() *collector { return &collector{got: make(map[string][]int64)} }

func (c *collector) on(m models.PriceMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got[m.Code] = append(c.got[m.Code], m.CurrentPrice.IntPart())
}

func (c *collector) prices(code string) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.got[code]...)
}

func quote(code string, p int64) models.PriceMessage {
	return models.PriceMessage{Code: code, CurrentPrice: decimal.NewFromInt(p)}
}

func TestShared_OneUpstreamForOverlappingListeners(t *testing.T) {
	defer goleak.VerifyNone(t)

	up := &upstream{}
	s := feed.NewShared(context.Background(), up, zap.NewNop())
	a, b := newCollector(), newCollector()

	ha, err := s.Start(context.Background(), []string{"A1"}, a.on)
	require.NoError(t, err)
	hb, err := s.Start(context.Background(), []string{"A1"}, b.on)
	require.NoError(t, err)

	assert.Len(t, up.starts, 1)
	assert.Equal(t, 1, up.live())

	up.push(quote("A1", 10))
	assert.Equal(t, []int64{10}, a.prices("A1"))
	assert.Equal(t, []int64{10}, b.prices("A1"))

	require.NoError(t, ha.Close())
	assert.Equal(t, 1, up.live(), "b still watches A1")
	up.push(quote("A1", 11))
	assert.Equal(t, []int64{10}, a.prices("A1"))
	assert.Equal(t, []int64{10, 11}, b.prices("A1"))

	require.NoError(t, hb.Close())
	assert.Equal(t, 0, up.live())
	assert.Empty(t, s.Codes())
}

func TestShared_ReopensOnUnionChange(t *testing.T) {
	up := &upstream{}
	s := feed.NewShared(context.Background(), up, zap.NewNop())
	a, b := newCollector(), newCollector()

	ha, err := s.Start(context.Background(), []string{"B2"}, a.on)
	require.NoError(t, err)
	hb, err := s.Start(context.Background(), []string{"A1", "B2"}, b.on)
	require.NoError(t, err)
	defer hb.Close()

	assert.Equal(t, [][]string{{"B2"}, {"A1", "B2"}}, up.starts)
	assert.Equal(t, 1, up.live(), "old upstream closed before the new one")

	up.push(quote("A1", 5))
	assert.Empty(t, a.prices("A1"), "a never asked for A1")
	assert.Equal(t, []int64{5}, b.prices("A1"))

	// the union is unchanged when a leaves, so no reopen
	require.NoError(t, ha.Close())
	assert.Len(t, up.starts, 2)
	assert.Equal(t, []string{"A1", "B2"}, s.Codes())
}

func TestShared_ReplaysLastQuote(t *testing.T) {
	up := &upstream{}
	s := feed.NewShared(context.Background(), up, zap.NewNop())
	a, b := newCollector(), newCollector()

	ha, err := s.Start(context.Background(), []string{"A1"}, a.on)
	require.NoError(t, err)
	defer ha.Close()
	up.push(quote("A1", 10))
	up.push(quote("A1", 12))

	hb, err := s.Start(context.Background(), []string{"A1", "B2"}, b.on)
	require.NoError(t, err)
	defer hb.Close()

	assert.Equal(t, []int64{12}, b.prices("A1"))
	assert.Empty(t, b.prices("B2"))
}

func TestShared_FailedStartRestoresUpstream(t *testing.T) {
	up := &upstream{reject: "C3"}
	s := feed.NewShared(context.Background(), up, zap.NewNop())
	a := newCollector()

	ha, err := s.Start(context.Background(), []string{"A1"}, a.on)
	require.NoError(t, err)
	defer ha.Close()

	_, err = s.Start(context.Background(), []string{"C3"}, func(models.PriceMessage) {})
	require.Error(t, err)

	assert.Equal(t, []string{"A1"}, s.Codes())
	assert.Equal(t, 1, up.live())
	up.push(quote("A1", 7))
	assert.Equal(t, []int64{7}, a.prices("A1"))
}

func TestShared_RejectsEmptyCodes(t *testing.T) {
	s := feed.NewShared(context.Background(), &upstream{}, zap.NewNop())
	_, err := s.Start(context.Background(), []string{"", ""}, func(models.PriceMessage) {})
	assert.ErrorIs(t, err, feed.ErrNoCodes)
}
